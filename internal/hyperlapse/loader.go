package hyperlapse

import "context"

// imageStep fetches imagery for the pending Reel entry. Cancellation is
// checked only once the fetch has returned.
func (h *Hyperlapse) imageStep(ctx context.Context, gen uint64) error {
	h.mu.Lock()
	i := h.pending
	rec := h.reel.At(i)
	h.mu.Unlock()

	img, err := h.panos.FetchImage(ctx, rec.PanoID)
	if err != nil {
		return &FetchImageError{Index: i, PanoID: rec.PanoID, Err: err}
	}

	h.mu.Lock()
	if h.gen != gen {
		h.mu.Unlock()
		return nil
	}
	rec.Image = img

	events := []Event{{Type: EventLoadProgress, Position: i + 1}}
	switch {
	case i+1 == h.reel.Len():
		h.loading = false
		h.stage = stageIdle
		h.cursor.Index = 0
		h.cam.track(h.geodesy, h.reel.At(0), h.opts, h.lookatElevation)
		events = append(events, Event{Type: EventLoadComplete})
		events = append(events, h.playLocked()...)
	case h.cancel:
		events = append(events, h.cancelLocked())
	default:
		h.pending++
	}
	h.mu.Unlock()

	h.emit(events...)
	return nil
}
