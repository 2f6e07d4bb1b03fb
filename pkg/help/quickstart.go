// Package help holds the text printed by the quickstart command.
package help

const QuickstartYAML = `# mmgamerag quick start

pipeline:
  - "crawl: fetch walkthrough pages, keep the relevant ones as dumps"
  - "graph build: turn dumps into Category -> Title -> Subtitle -> Text/Img nodes"
  - "index: embed Text and Img nodes for similarity search (pgvector backend)"
  - "ask / serve: answer questions from the graph"

commands:
  crawl_keyword: |
    mmgamerag crawl --keyword "黑神话" --depth 2
  crawl_seed_into_graph: |
    mmgamerag crawl --seed https://www.gamersky.com/handbook/202408/1803231.shtml --keyword wukong --graph
  rebuild_graph: |
    mmgamerag graph reset && mmgamerag graph build
  graph_stats: |
    mmgamerag graph stats
  index: |
    mmgamerag index --reset
  ask_graph_mode: |
    mmgamerag ask "how do I beat the tiger vanguard"
  ask_quick_mode: |
    mmgamerag ask --mode quick --formatted "where is the second bell"
  serve: |
    mmgamerag serve --addr :8080
  forget_crawled_urls: |
    mmgamerag ledger reset

modes:
  graph: "Top matches are expanded to their whole Title with sibling pages, in page order"
  quick: "Separate text and image searches, numbered context, no graph walk"

key_files:
  - "<data_dir>/pages/*_text_with_images.html (text with inline image markers)"
  - "<data_dir>/pages/*_meta.yaml (url, title, language, counts)"
  - "<data_dir>/pages/mmimg.json (text around every image)"
  - "<data_dir>/runs/index.yaml (one line per crawl)"
  - "<data_dir>/ledger/ (crawled and relevant URL sets)"
  - "<data_dir>/graph.db (SQLite graph when graph.driver is sqlite)"

http:
  ask: 'POST /api/ask {"question": "...", "mode": "graph"}'
  stream: "GET /api/stream?msg=...&mode=quick (server-sent events, ends with data: [DONE])"
  convert_markdown: 'POST /api/convert_markdown {"markdown": "..."}'
  status: "GET /api/status (websocket, flow status updates)"
  health: "GET /healthz"
  metrics: "GET /metrics"

exit_codes:
  - "0: success"
  - "1: configuration, store or LLM error (per-page crawl failures do not fail the run)"
`
