package hyperlapse

import "context"

// resolveStep resolves the pending raw point. A point whose panorama matches
// the previous record is dropped from the raw points and the same index is
// retried with the point that slid into its place.
func (h *Hyperlapse) resolveStep(ctx context.Context, gen uint64) error {
	h.mu.Lock()
	i := h.pending
	p := h.raw.At(i)
	h.mu.Unlock()

	pano, err := h.panos.Resolve(ctx, p)
	if err != nil {
		return &ResolveError{Index: i, Point: p, Err: err}
	}

	h.mu.Lock()
	if h.gen != gen {
		h.mu.Unlock()
		return nil
	}

	var events []Event
	done := false
	if last, ok := h.reel.Last(); ok && last.PanoID == pano.PanoID {
		h.raw.RemoveAt(i)
		done = i == h.raw.Len()
	} else {
		rec := newRecord(pano)
		h.reel.Append(rec)
		events = append(events, Event{Type: EventRouteProgress, Point: rec})
		done = i == h.raw.Len()-1
		if !done {
			h.pending++
		}
	}

	switch {
	case h.cancel:
		events = append(events, h.cancelLocked())
	case done:
		h.stage = stageElevation
	}
	h.mu.Unlock()

	h.emit(events...)
	return nil
}
