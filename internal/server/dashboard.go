package server

import "net/http"

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Card Scan Log</title>
<style>
  *, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
  :root {
    --bg: #0c0a09; --surface: #1c1917; --surface-hover: #292524;
    --border: rgba(249,115,22,0.12); --border-strong: rgba(249,115,22,0.25);
    --text: #fafaf9; --text-dim: #a8a29e; --text-muted: #57534e;
    --orange: #f97316; --orange-dim: rgba(249,115,22,0.15);
    --green: #22c55e; --red: #ef4444;
  }
  body {
    font-family: -apple-system, 'SF Pro Display', 'Segoe UI', system-ui, sans-serif;
    background: var(--bg); color: var(--text);
    min-height: 100vh; padding: 40px 24px;
  }
  .container { max-width: 880px; margin: 0 auto; }
  .header { display: flex; align-items: center; justify-content: space-between; margin-bottom: 32px; }
  .header h1 { font-size: 22px; font-weight: 700; letter-spacing: -0.02em; }
  .status-pill {
    display: inline-flex; align-items: center; gap: 6px; font-size: 12px;
    padding: 4px 12px; border-radius: 999px; border: 1px solid var(--border-strong); color: var(--text-dim);
  }
  .status-pill .dot { width: 7px; height: 7px; border-radius: 50%; background: var(--red); }
  .status-pill.online .dot { background: var(--green); }
  .stats { display: grid; grid-template-columns: repeat(3, 1fr); gap: 12px; margin-bottom: 24px; }
  .stat { background: var(--surface); border: 1px solid var(--border); border-radius: 12px; padding: 18px 20px; }
  .stat .label { font-size: 11px; text-transform: uppercase; letter-spacing: 0.08em; color: var(--text-muted); }
  .stat .value { font-size: 28px; font-weight: 700; margin-top: 6px; font-variant-numeric: tabular-nums; }
  table { width: 100%; border-collapse: collapse; background: var(--surface); border: 1px solid var(--border); border-radius: 12px; overflow: hidden; }
  th { text-align: left; font-size: 11px; text-transform: uppercase; letter-spacing: 0.08em; color: var(--text-muted); padding: 12px 16px; border-bottom: 1px solid var(--border); }
  td { padding: 10px 16px; font-size: 13px; border-bottom: 1px solid var(--border); }
  tr:hover td { background: var(--surface-hover); }
  td.time { color: var(--text-dim); font-variant-numeric: tabular-nums; }
  .uid { font-family: 'SF Mono', ui-monospace, monospace; color: var(--orange); background: var(--orange-dim); padding: 2px 8px; border-radius: 6px; }
  .toast {
    position: fixed; right: 24px; bottom: 24px; padding: 12px 18px; border-radius: 10px;
    background: var(--surface); border: 1px solid var(--border-strong); font-size: 14px;
    opacity: 0; transform: translateY(12px); transition: opacity .2s, transform .2s; pointer-events: none;
  }
  .toast.show { opacity: 1; transform: translateY(0); }
</style>
</head>
<body>
<div class="container">
  <div class="header">
    <h1>Card Scan Log</h1>
    <span class="status-pill" id="statusPill"><span class="dot"></span><span id="statusText">Connecting</span></span>
  </div>
  <div class="stats">
    <div class="stat"><div class="label">Total Scans</div><div class="value" id="totalScans">0</div></div>
    <div class="stat"><div class="label">Unique Users</div><div class="value" id="uniqueUsers">0</div></div>
    <div class="stat"><div class="label">Today</div><div class="value" id="todayScans">0</div></div>
  </div>
  <table>
    <thead><tr><th>Time</th><th>UID</th><th>User</th></tr></thead>
    <tbody id="logTableBody"></tbody>
  </table>
</div>
<div class="toast" id="toast"><span id="toastMessage"></span></div>
<script>
const MAX_ROWS = 50;
const TOAST_MS = 4000;
const $ = id => document.getElementById(id);

const state = { total: 0, users: new Set(), today: 0 };
const refDate = new Date().toDateString();
let toastTimer = null;
let loading = true;
let pending = [];

function sameDay(t) {
  const d = new Date(String(t || '').replace(' ', 'T'));
  return !isNaN(d) && d.toDateString() === refDate;
}

function renderCounters() {
  $('totalScans').textContent = state.total;
  $('uniqueUsers').textContent = state.users.size;
  $('todayScans').textContent = state.today;
}

function cell(cls, text, inner) {
  const td = document.createElement('td');
  if (cls) td.className = cls;
  if (inner) {
    const span = document.createElement('span');
    span.className = inner;
    span.textContent = text;
    td.appendChild(span);
  } else {
    td.textContent = text;
  }
  return td;
}

function renderRow(log) {
  const body = $('logTableBody');
  const tr = document.createElement('tr');
  tr.appendChild(cell('time', log.time ?? ''));
  tr.appendChild(cell('', log.uid ?? '', 'uid'));
  tr.appendChild(cell('user', log.user ?? ''));
  body.insertBefore(tr, body.firstChild);
  while (body.children.length > MAX_ROWS) body.removeChild(body.lastChild);
}

function notify(msg) {
  $('toastMessage').textContent = msg;
  $('toast').classList.add('show');
  clearTimeout(toastTimer);
  toastTimer = setTimeout(() => $('toast').classList.remove('show'), TOAST_MS);
}

function onLiveEvent(log) {
  state.total++;
  state.users.add(log.user ?? '');
  if (sameDay(log.time)) state.today++;
  renderCounters();
  renderRow(log);
  notify((log.user ?? '') + ' scanned card ' + (log.uid ?? ''));
}

async function loadHistory() {
  let lastId = 0;
  try {
    const res = await fetch('/api/logs?limit=' + MAX_ROWS);
    const data = await res.json();
    if (data.logs && data.logs.length > 0) {
      [...data.logs].reverse().forEach(log => {
        renderRow(log);
        state.users.add(log.user ?? '');
        if (sameDay(log.time)) state.today++;
        if (log.id > lastId) lastId = log.id;
      });
      state.total += data.logs.length;
      renderCounters();
    }
  } catch (e) {
    console.error('Failed to load existing logs:', e);
  }
  loading = false;
  pending.forEach(log => { if (!(lastId && log.id && log.id <= lastId)) onLiveEvent(log); });
  pending = [];
}

function connect(delay) {
  const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
  ws.onopen = () => {
    delay = 500;
    $('statusPill').className = 'status-pill online';
    $('statusText').textContent = 'Live';
  };
  ws.onmessage = ev => {
    let msg;
    try { msg = JSON.parse(ev.data); } catch (e) { return; }
    if (msg.event !== 'new_log') return;
    const log = msg.data || {};
    if (loading) pending.push(log); else onLiveEvent(log);
  };
  ws.onclose = () => {
    $('statusPill').className = 'status-pill';
    $('statusText').textContent = 'Reconnecting';
    setTimeout(() => connect(Math.min(delay * 2, 30000)), delay);
  };
}

renderCounters();
connect(500);
loadHistory();
</script>
</body>
</html>`

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(dashboardHTML))
}
