package rod

import (
	"encoding/json"
	"fmt"
	"strings"

	"session-agent/internal/domain/entity"
)

// Each patch runs on every new document before page scripts.

const webdriverPatch = `Object.defineProperty(Navigator.prototype, 'webdriver', { get: () => undefined, configurable: true });`

const pluginsPatch = `(() => {
  const names = ['PDF Viewer', 'Chrome PDF Viewer', 'Chromium PDF Viewer', 'Microsoft Edge PDF Viewer', 'WebKit built-in PDF'];
  const plugins = names.map((name) => ({ name, filename: 'internal-pdf-viewer', description: 'Portable Document Format', length: 1 }));
  Object.defineProperty(Navigator.prototype, 'plugins', { get: () => plugins, configurable: true });
})();`

const languagesPatch = `Object.defineProperty(Navigator.prototype, 'languages', { get: () => %s, configurable: true });`

const chromeRuntimePatch = `(() => {
  if (!window.chrome) { Object.defineProperty(window, 'chrome', { value: {}, writable: true, configurable: true }); }
  if (!window.chrome.runtime) { window.chrome.runtime = { connect: () => {}, sendMessage: () => {}, id: undefined }; }
})();`

const permissionsPatch = `(() => {
  const query = window.navigator.permissions && window.navigator.permissions.query;
  if (!query) return;
  window.navigator.permissions.query = (p) =>
    p && p.name === 'notifications'
      ? Promise.resolve({ state: Notification.permission, onchange: null })
      : query.call(window.navigator.permissions, p);
})();`

// canvasNoisePatch flips the low bit of a few pixels in exported images. The
// flips are derived from the seed and the pixel data, so the same drawing
// always exports the same way, and they are applied to a scratch copy so the
// live canvas is never touched.
const canvasNoisePatch = `(() => {
  const seed = %d >>> 0;
  const toDataURL = HTMLCanvasElement.prototype.toDataURL;
  HTMLCanvasElement.prototype.toDataURL = function (...args) {
    try {
      const w = this.width, h = this.height;
      const ctx = w && h ? this.getContext('2d') : null;
      if (ctx) {
        const img = ctx.getImageData(0, 0, w, h);
        let s = seed;
        for (let i = 0; i < img.data.length; i++) { s = Math.imul(s ^ img.data[i], 16777619) >>> 0; }
        const next = () => { s = (Math.imul(s, 1664525) + 1013904223) >>> 0; return s; };
        for (let i = 0; i < 8; i++) {
          const idx = (next() %% (w * h)) * 4;
          img.data[idx] = img.data[idx] ^ 1;
        }
        const scratch = document.createElement('canvas');
        scratch.width = w;
        scratch.height = h;
        scratch.getContext('2d').putImageData(img, 0, 0);
        return toDataURL.apply(scratch, args);
      }
    } catch (e) {}
    return toDataURL.apply(this, args);
  };
})();`

const storageSeed = `(() => {
  const seeds = %s;
  const items = seeds[location.origin];
  if (!items) return;
  try { for (const [k, v] of items) { if (localStorage.getItem(k) === null) localStorage.setItem(k, v); } } catch (e) {}
})();`

const storageDump = `() => {
  try { return JSON.stringify(Object.keys(localStorage).map((k) => [k, localStorage.getItem(k)])); } catch (e) { return "[]"; }
}`

// patchScript joins the enabled engine patches. The stealth bundle is applied
// separately and already installs a PluginArray, so the plain plugin list is
// only used without it.
func patchScript(s entity.Suppression, languages []string, seed int64) string {
	var parts []string
	if s.Webdriver {
		parts = append(parts, webdriverPatch)
	}
	if s.Plugins && !s.StealthBundle {
		parts = append(parts, pluginsPatch)
	}
	if s.Languages && len(languages) > 0 {
		langs, _ := json.Marshal(languages)
		parts = append(parts, fmt.Sprintf(languagesPatch, langs))
	}
	if s.ChromeRuntime {
		parts = append(parts, chromeRuntimePatch)
	}
	if s.Permissions {
		parts = append(parts, permissionsPatch)
	}
	if s.CanvasNoise {
		parts = append(parts, fmt.Sprintf(canvasNoisePatch, uint32(seed)))
	}
	return strings.Join(parts, "\n")
}

// storageSeedScript writes each origin's items on the first document of that
// origin, leaving keys the page has already set untouched.
func storageSeedScript(origins []entity.OriginStorage) string {
	seeds := make(map[string][][2]string)
	for _, o := range origins {
		for _, item := range o.LocalStorage {
			seeds[o.Origin] = append(seeds[o.Origin], [2]string{item.Name, item.Value})
		}
	}
	if len(seeds) == 0 {
		return ""
	}
	data, err := json.Marshal(seeds)
	if err != nil {
		return ""
	}
	return fmt.Sprintf(storageSeed, data)
}
