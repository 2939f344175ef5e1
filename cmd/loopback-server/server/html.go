package server

// HTMLPage is the harness page. Automated sessions drive the remote video
// element directly; the buttons run an interactive loopback call.
const HTMLPage = `<!DOCTYPE html>
<html>
<head>
    <title>WebRTC Loopback</title>
    <style>
        body { font-family: sans-serif; margin: 2em; color: #222; }
        header { display: flex; align-items: baseline; gap: 1em; }
        header h1 { font-size: 1.4em; margin: 0; }
        .controls { margin: 1em 0; }
        .controls button { padding: 6px 18px; margin-right: 6px; }
        .videos { display: flex; gap: 12px; flex-wrap: wrap; }
        .videos figure { margin: 0; }
        .videos figcaption { font-size: 0.8em; color: #666; }
        video { width: 320px; height: 240px; background: #111; }
        #status { font-family: monospace; }
        #status.error { color: #b00020; }
        #status.connected { color: #1b5e20; }
        #playtime { font-family: monospace; color: #666; }
    </style>
</head>
<body>
    <header>
        <h1>WebRTC Loopback</h1>
        <span id="status" class="waiting">idle</span>
    </header>

    <div class="controls">
        <button id="startBtn" onclick="startCall()">Start</button>
        <button id="stopBtn" onclick="stopCall()" disabled>Stop</button>
        <span id="playtime"></span>
    </div>

    <div class="videos">
        <figure>
            <video id="local" autoplay muted playsinline></video>
            <figcaption>sent</figcaption>
        </figure>
        <figure>
            <video id="remote" autoplay playsinline></video>
            <figcaption>looped back</figcaption>
        </figure>
    </div>

    <script>
        let pc = null;
        let localStream = null;
        let call = null;

        function setStatus(message, type) {
            const status = document.getElementById('status');
            status.textContent = message;
            status.className = type;
        }

        document.getElementById('remote').addEventListener('timeupdate', (e) => {
            document.getElementById('playtime').textContent = e.target.currentTime.toFixed(1) + 's';
        });

        async function startCall() {
            document.getElementById('startBtn').disabled = true;
            document.getElementById('stopBtn').disabled = false;

            try {
                setStatus('Requesting camera and microphone...', 'connecting');
                localStream = await navigator.mediaDevices.getUserMedia({ video: true, audio: true });
                document.getElementById('local').srcObject = localStream;

                pc = new RTCPeerConnection({ iceServers: [] });
                localStream.getTracks().forEach(track => pc.addTrack(track, localStream));

                pc.ontrack = (event) => {
                    const remote = document.getElementById('remote');
                    if (remote.srcObject !== event.streams[0]) {
                        remote.srcObject = event.streams[0];
                    }
                };

                pc.onconnectionstatechange = () => {
                    if (pc.connectionState === 'connected') {
                        setStatus('Connected, playing loopback', 'connected');
                    } else if (pc.connectionState === 'failed') {
                        setStatus('Connection failed', 'error');
                    } else if (pc.connectionState === 'disconnected') {
                        setStatus('Disconnected', 'closed');
                    }
                };

                await pc.setLocalDescription(await pc.createOffer());
                if (pc.iceGatheringState !== 'complete') {
                    await new Promise(resolve => {
                        pc.addEventListener('icegatheringstatechange', () => {
                            if (pc.iceGatheringState === 'complete') resolve();
                        });
                    });
                }

                setStatus('Sending offer to server...', 'connecting');
                const response = await fetch('/offer', {
                    method: 'POST',
                    headers: { 'Content-Type': 'application/json' },
                    body: JSON.stringify(pc.localDescription)
                });
                if (!response.ok) {
                    throw new Error('Server returned ' + response.status);
                }
                const answer = await response.json();
                call = answer.call || null;
                await pc.setRemoteDescription({ type: answer.type, sdp: answer.sdp });
            } catch (err) {
                setStatus('Error: ' + err.message, 'error');
                console.error('Error starting call:', err);
                stopCall();
            }
        }

        function stopCall() {
            if (call) {
                fetch('/hangup?call=' + encodeURIComponent(call), { method: 'POST' });
                call = null;
            }
            if (pc) {
                pc.close();
                pc = null;
            }
            if (localStream) {
                localStream.getTracks().forEach(track => track.stop());
                localStream = null;
            }
            document.getElementById('local').srcObject = null;
            document.getElementById('remote').srcObject = null;
            document.getElementById('playtime').textContent = '';
            document.getElementById('startBtn').disabled = false;
            document.getElementById('stopBtn').disabled = true;
            setStatus('Call ended', 'closed');
        }
    </script>
</body>
</html>`
