package browser

// bindingName is the page function that reports media events to Go.
const bindingName = "loopbackEvent"

// harnessJS installs window.loopback on the page. It is idempotent.
//
// Arguments: sample rate of the audio recording, seconds to record after
// the first "playing" event (0 disables recording).
const harnessJS = `(sampleRate, recordSeconds) => {
  if (window.loopback) return true;

  let video = document.getElementById('remote');
  if (!video) {
    video = document.createElement('video');
    video.id = 'remote';
    video.autoplay = true;
    video.playsInline = true;
    document.body.appendChild(video);
  }

  const state = { pc: null, local: null, remote: null, recording: null };

  const toBase64 = (pcm) => {
    const bytes = new Uint8Array(pcm.buffer);
    let bin = '';
    for (let i = 0; i < bytes.length; i += 0x8000) {
      bin += String.fromCharCode.apply(null, bytes.subarray(i, i + 0x8000));
    }
    return btoa(bin);
  };

  const record = (stream) => new Promise((resolve, reject) => {
    if (stream.getAudioTracks().length === 0) {
      reject(new Error('remote stream has no audio track'));
      return;
    }
    const ctx = new AudioContext({ sampleRate });
    const source = ctx.createMediaStreamSource(stream);
    const proc = ctx.createScriptProcessor(4096, 1, 1);
    const want = Math.round(sampleRate * recordSeconds);
    const pcm = new Int16Array(want);
    let n = 0;
    proc.onaudioprocess = (e) => {
      if (n >= want) return;
      const data = e.inputBuffer.getChannelData(0);
      for (let i = 0; i < data.length && n < want; i++, n++) {
        const s = Math.max(-1, Math.min(1, data[i]));
        pcm[n] = s < 0 ? s * 0x8000 : s * 0x7fff;
      }
      if (n >= want) {
        proc.disconnect();
        source.disconnect();
        ctx.close();
        resolve(toBase64(pcm));
      }
    };
    source.connect(proc);
    proc.connect(ctx.destination);
  });

  video.addEventListener('playing', () => {
    if (recordSeconds > 0 && !state.recording && state.remote) {
      state.recording = record(state.remote);
    }
  });

  window.loopback = {
    subscribe(name) {
      video.addEventListener(name, () => window.` + bindingName + `(name));
    },

    async offer(audio, videoWanted) {
      state.local = await navigator.mediaDevices.getUserMedia({ audio, video: videoWanted });
      const pc = new RTCPeerConnection();
      state.pc = pc;
      pc.ontrack = (e) => {
        const stream = e.streams[0] || new MediaStream([e.track]);
        if (video.srcObject !== stream) {
          video.srcObject = stream;
        }
        state.remote = stream;
      };
      state.local.getTracks().forEach((t) => pc.addTrack(t, state.local));
      await pc.setLocalDescription(await pc.createOffer());
      if (pc.iceGatheringState !== 'complete') {
        await new Promise((resolve) => {
          pc.addEventListener('icegatheringstatechange', () => {
            if (pc.iceGatheringState === 'complete') resolve();
          });
        });
      }
      return pc.localDescription.sdp;
    },

    async answer(sdp) {
      await state.pc.setRemoteDescription({ type: 'answer', sdp });
      return true;
    },

    currentTime() {
      return video.currentTime;
    },

    color(x, y) {
      const w = video.videoWidth;
      const h = video.videoHeight;
      if (!w || !h) throw new Error('no video frame rendered');
      const canvas = document.createElement('canvas');
      canvas.width = w;
      canvas.height = h;
      const ctx = canvas.getContext('2d');
      ctx.drawImage(video, 0, 0, w, h);
      const px = ctx.getImageData(Math.min(w - 1, Math.floor(x * w)), Math.min(h - 1, Math.floor(y * h)), 1, 1).data;
      return [px[0], px[1], px[2]];
    },

    async recorded() {
      if (!state.recording) throw new Error('recording has not started');
      return await state.recording;
    },
  };
  return true;
}`
