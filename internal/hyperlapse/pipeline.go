package hyperlapse

import "context"

// GenerateParams describes one generation. Zero spacing or point limits keep
// the current settings; negative values are rejected.
type GenerateParams struct {
	Route                 Route
	DistanceBetweenPoints float64
	MaxPoints             int
}

// Generate rebuilds the Reel for params.Route. It samples the route, then
// runs resolution, elevation annotation and image loading one service call at
// a time, and starts playback when every image is loaded. It blocks until the
// pipeline finishes, is canceled, or stalls on a service failure.
//
// A resolve or image failure is emitted as an error event and returned as a
// *ResolveError or *FetchImageError. The pipeline stays parked on the failing
// entry: call Resume to retry it or Cancel to give up. Cancellation is not an
// error; Generate returns nil after emitting load.canceled.
func (h *Hyperlapse) Generate(ctx context.Context, params GenerateParams) error {
	h.mu.Lock()
	if h.loading {
		h.mu.Unlock()
		return ErrLoading
	}

	var events []Event
	if h.playing {
		events = append(events, h.pauseLocked())
	}

	spacing := h.opts.DistanceBetweenPoints
	if params.DistanceBetweenPoints != 0 {
		spacing = params.DistanceBetweenPoints
	}
	maxPoints := h.opts.MaxPoints
	if params.MaxPoints != 0 {
		maxPoints = params.MaxPoints
	}
	points, err := Sample(h.geodesy, params.Route, spacing, maxPoints)
	if err != nil {
		h.mu.Unlock()
		h.emit(events...)
		return err
	}

	h.resetLocked()
	h.opts.DistanceBetweenPoints = spacing
	h.opts.MaxPoints = maxPoints
	h.raw.Append(points...)
	h.loading = true
	h.stage = stageResolve
	gen := h.gen
	h.mu.Unlock()

	h.emit(events...)
	return h.run(ctx, gen)
}

// Resume retries the stage a failed service call left parked.
func (h *Hyperlapse) Resume(ctx context.Context) error {
	h.mu.Lock()
	if !h.loading || !h.stalled {
		h.mu.Unlock()
		return ErrNotStalled
	}
	h.stalled = false
	gen := h.gen
	h.mu.Unlock()

	return h.run(ctx, gen)
}

// Cancel asks a running generation to stop at the next stage boundary: after
// the in-flight resolve, after the elevation stage, or after the in-flight
// image fetch. If the in-flight call fails, the load ends instead of
// stalling. A stalled generation stops immediately. Records already in the
// Reel are kept.
func (h *Hyperlapse) Cancel() {
	h.mu.Lock()
	if !h.loading {
		h.mu.Unlock()
		return
	}
	if !h.stalled {
		h.cancel = true
		h.mu.Unlock()
		return
	}
	e := h.cancelLocked()
	h.mu.Unlock()
	h.emit(e)
}

func (h *Hyperlapse) cancelLocked() Event {
	h.cancel = false
	h.stalled = false
	h.loading = false
	h.stage = stageIdle
	return Event{Type: EventLoadCanceled}
}

// run drives the stages until the pipeline goes idle, a step fails, or the
// generation is superseded by a Reset.
func (h *Hyperlapse) run(ctx context.Context, gen uint64) error {
	for {
		h.mu.Lock()
		if h.gen != gen || h.stage == stageIdle {
			h.mu.Unlock()
			return nil
		}
		st := h.stage
		h.mu.Unlock()

		if err := ctx.Err(); err != nil {
			if h.stall(gen) {
				return nil
			}
			return err
		}

		var err error
		switch st {
		case stageResolve:
			err = h.resolveStep(ctx, gen)
		case stageElevation:
			h.annotateStep(ctx, gen)
		case stageImages:
			err = h.imageStep(ctx, gen)
		}
		if err != nil {
			if h.stall(gen) {
				return nil
			}
			h.emit(Event{Type: EventError, Err: err})
			return err
		}
	}
}

// stall parks the generation on a failed step. A cancel requested while the
// step was in flight wins: the load ends with load.canceled and stall reports
// true.
func (h *Hyperlapse) stall(gen uint64) bool {
	h.mu.Lock()
	if h.gen != gen || !h.loading {
		h.mu.Unlock()
		return false
	}
	if h.cancel {
		e := h.cancelLocked()
		h.mu.Unlock()
		h.emit(e)
		return true
	}
	h.stalled = true
	h.mu.Unlock()
	return false
}
