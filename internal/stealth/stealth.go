// Package stealth gives page interactions human texture: jittered sleeps,
// bezier mouse travel, typo-prone typing, and read-like scrolling.
package stealth

import (
	"math"
	"math/rand"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// SleepRandom sleeps a uniform random duration between min and max
// milliseconds.
func SleepRandom(minMs, maxMs int) {
	if maxMs < minMs {
		maxMs = minMs
	}
	time.Sleep(time.Duration(minMs+rand.Intn(maxMs-minMs+1)) * time.Millisecond)
}

// SleepGaussian sleeps a normally distributed duration. Human pauses
// cluster around a mean rather than spreading uniformly.
func SleepGaussian(meanMs, stdDevMs int) {
	delay := int(float64(meanMs) + rand.NormFloat64()*float64(stdDevMs))
	if delay < meanMs-3*stdDevMs {
		delay = meanMs - 3*stdDevMs
	} else if delay > meanMs+3*stdDevMs {
		delay = meanMs + 3*stdDevMs
	}
	if delay > 0 {
		time.Sleep(time.Duration(delay) * time.Millisecond)
	}
}

// ThinkTime pauses roughly as long as a person deciding what to do next.
func ThinkTime() { SleepGaussian(1400, 600) }

// MoveMouse travels from one point to another along a cubic bezier with
// micro-jitter and eased acceleration instead of teleporting.
func MoveMouse(p *rod.Page, fromX, fromY, toX, toY int) {
	dist := math.Hypot(float64(toX-fromX), float64(toY-fromY))
	steps := 40 + int(dist/20) + rand.Intn(15)

	cx1 := fromX + (toX-fromX)/3 + rand.Intn(100) - 50
	cy1 := fromY + (toY-fromY)/3 + rand.Intn(100) - 50
	cx2 := fromX + 2*(toX-fromX)/3 + rand.Intn(100) - 50
	cy2 := fromY + 2*(toY-fromY)/3 + rand.Intn(100) - 50

	for i := 0; i <= steps; i++ {
		t := easeInOutCubic(float64(i) / float64(steps))
		x := cubicBezier(float64(fromX), float64(cx1), float64(cx2), float64(toX), t) + float64(rand.Intn(3)-1)
		y := cubicBezier(float64(fromY), float64(cy1), float64(cy2), float64(toY), t) + float64(rand.Intn(3)-1)
		_ = proto.InputDispatchMouseEvent{
			Type: proto.InputDispatchMouseEventTypeMouseMoved,
			X:    x,
			Y:    y,
		}.Call(p)

		delay := 8 + rand.Intn(10)
		if i < 5 || i > steps-5 {
			delay += 5 // slower at the endpoints
		}
		time.Sleep(time.Duration(delay) * time.Millisecond)
	}
}

func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

func cubicBezier(p0, p1, p2, p3, t float64) float64 {
	return math.Pow(1-t, 3)*p0 +
		3*math.Pow(1-t, 2)*t*p1 +
		3*(1-t)*math.Pow(t, 2)*p2 +
		math.Pow(t, 3)*p3
}

func viewportCenter(p *rod.Page) (int, int) {
	x, y := 700, 450
	if dims, err := p.Eval(`() => ({width: window.innerWidth, height: window.innerHeight})`); err == nil {
		if w := dims.Value.Get("width").Int(); w > 0 {
			x = w / 2
		}
		if h := dims.Value.Get("height").Int(); h > 0 {
			y = h / 2
		}
	}
	return x, y
}

// Click scrolls the element into view, moves the mouse onto a random point
// inside it, and presses with a human reaction gap between down and up.
func Click(p *rod.Page, el *rod.Element) error {
	_ = el.ScrollIntoView()
	SleepGaussian(300, 150)

	shape, err := el.Shape()
	if err != nil || len(shape.Quads) == 0 {
		return el.Click("left", 1)
	}
	box := shape.Box()
	targetX := int(box.X + box.Width*(0.3+rand.Float64()*0.4))
	targetY := int(box.Y + box.Height*(0.3+rand.Float64()*0.4))

	fromX, fromY := viewportCenter(p)
	MoveMouse(p, fromX, fromY, targetX, targetY)
	SleepRandom(50, 150)

	for _, typ := range []proto.InputDispatchMouseEventType{
		proto.InputDispatchMouseEventTypeMousePressed,
		proto.InputDispatchMouseEventTypeMouseReleased,
	} {
		if err := (proto.InputDispatchMouseEvent{
			Type:       typ,
			X:          float64(targetX),
			Y:          float64(targetY),
			Button:     proto.InputMouseButtonLeft,
			ClickCount: 1,
		}).Call(p); err != nil {
			return err
		}
		SleepRandom(30, 90)
	}
	return nil
}

// Type enters text rune by rune with variable rhythm, the occasional typo
// plus backspace, and longer pauses at punctuation.
func Type(el *rod.Element, text string) error {
	for i, r := range text {
		if rand.Float64() < 0.02 && i > 3 {
			_ = el.Input(nearbyTypo(r))
			SleepRandom(80, 180)
			_ = el.Input("\b")
			SleepRandom(100, 250)
		}
		if err := el.Input(string(r)); err != nil {
			return err
		}

		base := 25
		switch {
		case i < 10:
			base = 40 // slower while getting started
		case r == ' ' || r == ',' || r == '.':
			base = 60
		}
		SleepGaussian(base, 20)

		if rand.Float64() < 0.05 {
			SleepGaussian(300, 150) // re-reading pause
		}
	}
	return nil
}

var keyboardNeighbors = map[rune][]rune{
	'a': {'s', 'q', 'w', 'z'},
	'e': {'w', 'r', 'd'},
	'i': {'u', 'o', 'k', 'j'},
	'o': {'i', 'p', 'l', 'k'},
	's': {'a', 'd', 'w', 'x'},
	't': {'r', 'y', 'g', 'f'},
}

func nearbyTypo(r rune) string {
	if opts, ok := keyboardNeighbors[r]; ok {
		return string(opts[rand.Intn(len(opts))])
	}
	opts := []rune{'a', 'e', 'i', 'o', 'u', 's', 'n', 't', 'r', 'l'}
	return string(opts[rand.Intn(len(opts))])
}

// Scroll pages down in uneven steps with reading pauses, sometimes
// scrolling back up a little.
func Scroll(p *rod.Page) {
	steps := 3 + rand.Intn(5)
	for i := 0; i < steps; i++ {
		px := 300 + rand.Intn(500)
		_, _ = p.Eval(`(dy) => window.scrollBy({top: dy, behavior: 'smooth'})`, px)
		SleepGaussian(400, 200)
		if rand.Float64() < 0.4 {
			SleepGaussian(1200, 500)
		}
	}
	if rand.Float64() < 0.4 {
		_, _ = p.Eval(`(dy) => window.scrollBy({top: dy, behavior: 'smooth'})`, -(100 + rand.Intn(120)))
		SleepRandom(300, 700)
	}
}

// Wander drifts the cursor to a random spot and jitters around it, the way
// a hand rests between deliberate actions.
func Wander(p *rod.Page) {
	w, h := viewportCenter(p)
	width, height := w*2, h*2
	margin := 100
	if width <= 2*margin || height <= 2*margin {
		return
	}
	x := margin + rand.Intn(width-2*margin)
	y := margin + rand.Intn(height-2*margin)
	MoveMouse(p, w, h, x, y)
	for i := 0; i < 2+rand.Intn(3); i++ {
		_ = proto.InputDispatchMouseEvent{
			Type: proto.InputDispatchMouseEventTypeMouseMoved,
			X:    float64(x + rand.Intn(40) - 20),
			Y:    float64(y + rand.Intn(40) - 20),
		}.Call(p)
		SleepRandom(100, 400)
	}
}

// InActiveWindow reports whether the current local time falls inside the
// configured "15:04"-formatted working hours.
func InActiveWindow(start, end string) bool {
	now := time.Now()
	s, err := time.Parse("15:04", start)
	if err != nil {
		return true
	}
	e, err := time.Parse("15:04", end)
	if err != nil {
		return true
	}
	startToday := time.Date(now.Year(), now.Month(), now.Day(), s.Hour(), s.Minute(), 0, 0, now.Location())
	endToday := time.Date(now.Year(), now.Month(), now.Day(), e.Hour(), e.Minute(), 0, 0, now.Location())
	return now.After(startToday) && now.Before(endToday)
}
