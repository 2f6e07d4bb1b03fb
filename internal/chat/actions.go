package chat

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"

	"github.com/mccodeai/mmgamerag/internal/app"
	"github.com/mccodeai/mmgamerag/internal/server"
	"github.com/mccodeai/mmgamerag/pkg/answer"
	chatpkg "github.com/mccodeai/mmgamerag/pkg/chat"
)

func AskAction(c *cli.Context) error {
	a, err := app.FromCLI(c)
	if err != nil {
		return err
	}
	defer a.Close()
	return Ask(c, a)
}

func ServeAction(c *cli.Context) error {
	a, err := app.FromCLI(c)
	if err != nil {
		return err
	}
	defer a.Close()
	return Serve(c, a)
}

// Ask answers the question given as arguments. Tokens are written as they
// arrive; --formatted waits and prints the answer with images inlined.
func Ask(c *cli.Context, a *app.App) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return errors.New("a question is required")
	}
	assistant, err := a.Assistant(c.Context, c.String("mode"))
	if err != nil {
		return err
	}

	if c.Bool("formatted") {
		out, err := assistant.Ask(c.Context, question)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(a.Out, out)
		return err
	}

	_, err = assistant.AskStream(c.Context, question, func(chunk string) error {
		_, err := io.WriteString(a.Out, chunk)
		return err
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.Out)
	return err
}

// Serve runs the HTTP surface until the command's context is cancelled.
func Serve(c *cli.Context, a *app.App) error {
	addr := a.Config.HTTP.Addr
	if c.IsSet("addr") {
		addr = c.String("addr")
	}

	graphAssistant, err := a.Assistant(c.Context, chatpkg.ModeGraph)
	if err != nil {
		return err
	}
	quickAssistant, err := graphAssistant.WithMode(chatpkg.ModeQuick)
	if err != nil {
		return err
	}
	f, err := a.Fetcher()
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	srv, err := server.New(server.Options{
		Assistants: map[string]server.Assistant{
			chatpkg.ModeGraph: graphAssistant,
			chatpkg.ModeQuick: quickAssistant,
		},
		DefaultMode: a.Config.Chat.Mode,
		Converter:   answer.New(f, a.Logger),
		Logger:      a.Logger,
	})
	if err != nil {
		return err
	}
	return srv.Run(c.Context, addr)
}
