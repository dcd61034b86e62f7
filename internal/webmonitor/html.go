package webmonitor

const indexHTML = `
<!DOCTYPE html>
<html>
<head>
    <title>Check-in Kiosk Monitor</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { margin: 0; background: #18181c; color: #ebebeb; font-family: sans-serif; }
        .app { display: flex; gap: 16px; padding: 16px; flex-wrap: wrap; }
        .panel { background: #24242a; border-radius: 8px; padding: 12px; }
        .panel h2 { margin: 0 0 8px; font-size: 16px; }
        #stream { width: 300px; height: 450px; background: #000; display: block; }
        #feedback { list-style: none; margin: 0; padding: 0; width: 360px; max-height: 450px; overflow-y: auto; }
        #feedback li { padding: 4px 6px; border-bottom: 1px solid #333; font-size: 14px; }
        #feedback li.accepted { color: #00c800; }
        #feedback li.rejected { color: #ff3030; }
        #feedback li.pending { color: #ffd000; }
        .commands { display: flex; gap: 8px; margin-top: 8px; }
        .commands button { padding: 6px 10px; }
        #status { font-size: 12px; color: #999; margin-top: 8px; white-space: pre; }
    </style>
</head>
<body>
    <div class="app">
        <div class="panel">
            <h2>Camera</h2>
            <img id="stream" src="/stream" alt="Live camera preview">
        </div>
        <div class="panel">
            <h2>Feedback</h2>
            <ul id="feedback"></ul>
            <div class="commands">
                <button data-command="authenticate">Authenticate</button>
                <button data-command="enroll">Enroll</button>
                <button data-command="resync">Resync</button>
            </div>
            <div id="status">Waiting for data...</div>
        </div>
    </div>
    <script>
        const list = document.getElementById('feedback');

        function addFeedback(msg, status) {
            const li = document.createElement('li');
            li.textContent = msg;
            if (status) li.className = status;
            list.prepend(li);
            while (list.children.length > 50) list.removeChild(list.lastChild);
        }

        const events = new EventSource('/api/feedback/stream');
        events.onmessage = (e) => {
            try {
                const data = JSON.parse(e.data);
                addFeedback(data.msg, data.status);
            } catch (err) {
                console.error('Bad feedback event', err);
            }
        };

        document.querySelectorAll('[data-command]').forEach((btn) => {
            btn.addEventListener('click', () => {
                fetch('/api/commands', {
                    method: 'POST',
                    headers: { 'Content-Type': 'application/json' },
                    body: JSON.stringify({ command: btn.dataset.command }),
                });
            });
        });

        async function refreshStatus() {
            try {
                const res = await fetch('/api/status');
                const s = await res.json();
                document.getElementById('status').textContent =
                    'mode: ' + s.face.mode + '  ready: ' + s.face.ready +
                    '  employees: ' + s.face.employees +
                    '\ncamera: ' + (s.camera.connected ? 'connected' : 'disconnected') +
                    '  displays: ' + s.broadcast.clients;
            } catch (err) {
                document.getElementById('status').textContent = 'Status unavailable';
            }
        }
        refreshStatus();
        setInterval(refreshStatus, 2000);
    </script>
</body>
</html>
`
