package hyperlapse

import "fmt"

// Play starts playback. It does nothing while the Reel is loading.
func (h *Hyperlapse) Play() {
	h.mu.Lock()
	events := h.playLocked()
	h.mu.Unlock()
	h.emit(events...)
}

func (h *Hyperlapse) playLocked() []Event {
	if h.loading {
		return nil
	}
	h.playing = true
	return []Event{{Type: EventPlay}}
}

// Pause stops playback.
func (h *Hyperlapse) Pause() {
	h.mu.Lock()
	e := h.pauseLocked()
	h.mu.Unlock()
	h.emit(e)
}

func (h *Hyperlapse) pauseLocked() Event {
	h.playing = false
	return Event{Type: EventPause}
}

// Next pauses and shows the following frame immediately. Like Play, it does
// nothing while the Reel is loading.
func (h *Hyperlapse) Next() error {
	return h.step(1)
}

// Prev pauses and shows the preceding frame immediately.
func (h *Hyperlapse) Prev() error {
	return h.step(-1)
}

func (h *Hyperlapse) step(delta int) error {
	h.mu.Lock()
	if h.loading {
		h.mu.Unlock()
		return nil
	}
	events := []Event{h.pauseLocked()}
	next := h.cursor.Index + delta
	moved := next >= 0 && next < h.reel.Len()
	if moved {
		h.cursor.Index = next
		events = append(events, h.drawLocked())
	}
	view, ok := h.viewLocked()
	h.mu.Unlock()

	h.emit(events...)
	if !moved || !ok {
		return nil
	}
	return h.render(view)
}

// Tick is called by the host once per render tick. It accumulates elapsed
// time and, once a frame interval has passed while playing, moves the cursor
// one ping-pong step. Every tick renders the current frame unless the Reel is
// empty or still loading.
func (h *Hyperlapse) Tick() error {
	h.mu.Lock()
	now := h.clock.Now()
	h.dtime += now.Sub(h.ctime)
	h.ctime = now

	var events []Event
	if h.dtime >= h.opts.frameInterval() {
		if h.playing && h.reel.Len() > 0 {
			h.advanceLocked()
			events = append(events, h.drawLocked())
		}
		h.dtime = 0
	}
	view, ok := h.viewLocked()
	h.mu.Unlock()

	h.emit(events...)
	if !ok {
		return nil
	}
	return h.render(view)
}

// advanceLocked moves the cursor one step, reversing at either end of the
// Reel so each endpoint is shown once per pass.
func (h *Hyperlapse) advanceLocked() {
	n := h.reel.Len()
	if n < 2 {
		h.cursor.Index = 0
		return
	}
	c := &h.cursor
	if c.Direction == Forward {
		c.Index++
		if c.Index >= n-1 {
			c.Index = n - 1
			c.Direction = Backward
		}
		return
	}
	c.Index--
	if c.Index <= 0 {
		c.Index = 0
		c.Direction = Forward
	}
}

// drawLocked loads the record under the cursor into the camera and returns
// the frame event.
func (h *Hyperlapse) drawLocked() Event {
	rec := h.reel.At(h.cursor.Index)
	h.cam.track(h.geodesy, rec, h.opts, h.lookatElevation)
	return Event{Type: EventFrame, Position: h.cursor.Index, Point: rec}
}

// viewLocked derives this frame's camera. It reports false when nothing
// should be drawn.
func (h *Hyperlapse) viewLocked() (View, bool) {
	n := h.reel.Len()
	if h.loading || n == 0 {
		return View{}, false
	}
	rec := h.reel.At(h.cursor.Index)
	t := float64(h.cursor.Index) / float64(n)
	return View{
		Position: h.cursor.Index,
		Point:    rec,
		Image:    rec.Image,
		Camera:   h.cam.orient(t, h.opts),
		Width:    h.opts.Width,
		Height:   h.opts.Height,
		FOV:      h.opts.FOV,
	}, true
}

func (h *Hyperlapse) render(v View) error {
	if h.renderer == nil {
		return nil
	}
	if err := h.renderer.Render(v); err != nil {
		return fmt.Errorf("render frame %d: %w", v.Position, err)
	}
	return nil
}
