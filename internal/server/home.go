package server

const homeHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>improv — the website that makes itself up</title>
  <style>
    body { font-family: Arial, sans-serif; max-width: 800px; margin: auto; padding: 2rem; line-height: 1.6; }
    input[type=text] { width: 70%; padding: 0.5rem; font-size: 1rem; }
    button { padding: 0.5rem 1rem; font-size: 1rem; }
    code { background: #f4f4f4; padding: 0.1rem 0.3rem; }
    .hint { color: #666; font-size: 0.9rem; }
    ul.examples li { margin: 0.3rem 0; }
  </style>
</head>
<body>
  <h1>improv</h1>
  <p>Every URL on this site exists. None of them are real. Ask for a page and
  the AI will improvise it on the spot.</p>

  <form action="/go" method="get">
    <input type="text" name="q" placeholder="what do you want a page about?" autofocus>
    <button type="submit">Improvise</button>
    <p class="hint">We turn your words into a smart URL behind the scenes. Power users can edit the address bar directly.</p>
  </form>

  <h2>Things to try</h2>
  <ul class="examples">
    <li><code>/cat</code> — explanation of a concept or thing.</li>
    <li><code>/why-is-the-sky-blue</code> — answer to a question.</li>
    <li><code>/about</code>, <code>/help</code>, <code>/contact</code> — normal-looking pages.</li>
    <li><code>/api/example</code> — JSON-style API responses.</li>
    <li><code>/random</code> — a page about something nobody asked for.</li>
    <li><code>/edit/cat</code> — regenerate an existing page with new instructions.</li>
  </ul>

  <p>Pages are remembered and lightly summarized, so related URLs can
  reference each other's knowledge.</p>
</body>
</html>
`
