package rod

// Pages served by httptest in the browser-backed tests.
const (
	LoginHTML = `<!DOCTYPE html>
<html>
<head><title>Sign in</title></head>
<body>
	<form id="login" onsubmit="event.preventDefault(); document.getElementById('result').textContent = 'submitted:' + document.getElementById('password').value;">
		<input id="username" type="text" name="text" autocomplete="username" />
		<input id="password" type="password" name="password" />
		<button id="submit" type="submit">Log in</button>
	</form>
	<div id="result"></div>
	<input id="hidden" type="text" style="display:none" />
</body>
</html>`

	SessionHTML = `<!DOCTYPE html>
<html>
<body>
	<div id="hint"></div>
	<script>
		localStorage.setItem('visited', 'yes');
		document.getElementById('hint').textContent = localStorage.getItem('session-hint') || 'none';
	</script>
</body>
</html>`

	FingerprintHTML = `<!DOCTYPE html>
<html>
<body>
	<pre id="fingerprint"></pre>
	<script>
		document.getElementById('fingerprint').textContent = JSON.stringify({
			webdriver: navigator.webdriver === undefined,
			runtime: !!(window.chrome && window.chrome.runtime),
			languages: navigator.languages,
			plugins: navigator.plugins.length,
			pluginArray: navigator.plugins instanceof PluginArray
		});
	</script>
</body>
</html>`

	CanvasHTML = `<!DOCTYPE html>
<html>
<body>
	<canvas id="c" width="64" height="32"></canvas>
	<pre id="canvas"></pre>
	<script>
		const c = document.getElementById('c');
		const ctx = c.getContext('2d');
		ctx.fillStyle = '#f60';
		ctx.fillRect(4, 4, 40, 20);
		ctx.fillStyle = '#069';
		ctx.font = '14px sans-serif';
		ctx.fillText('session', 6, 20);
		const before = Array.from(ctx.getImageData(0, 0, c.width, c.height).data).join(',');
		const first = c.toDataURL();
		const second = c.toDataURL();
		const after = Array.from(ctx.getImageData(0, 0, c.width, c.height).data).join(',');
		document.getElementById('canvas').textContent = JSON.stringify({
			stable: first === second,
			untouched: before === after,
			length: first.length
		});
	</script>
</body>
</html>`
)
