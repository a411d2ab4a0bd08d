package entity

type Screenshot struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Point struct {
	X float64
	Y float64
}

type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

type Geolocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

// Suppression toggles individual fingerprint patches applied at context creation.
type Suppression struct {
	StealthBundle bool
	Webdriver     bool
	Plugins       bool
	Languages     bool
	ChromeRuntime bool
	Permissions   bool
	CanvasNoise   bool
}

func AllSuppression() Suppression {
	return Suppression{
		StealthBundle: true,
		Webdriver:     true,
		Plugins:       true,
		Languages:     true,
		ChromeRuntime: true,
		Permissions:   true,
		CanvasNoise:   true,
	}
}

// EnvironmentConfig describes one isolated browsing context.
type EnvironmentConfig struct {
	Headless       bool
	NoSandbox      bool
	Viewport       Viewport
	ViewportJitter bool
	UserAgent      string
	Locale         string
	Languages      []string
	Timezone       string
	Geolocation    *Geolocation
	Suppression    Suppression
	NoiseSeed      int64
}
