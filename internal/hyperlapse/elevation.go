package hyperlapse

import (
	"context"
	"errors"
	"fmt"

	"gps_hyperlapse/internal/geo"
)

// annotateStep assigns elevations to the Reel and refreshes the look-at
// elevation. Elevation failures never stop the pipeline: records fall back to
// UnknownElevation and elevation stays off for the rest of the session.
func (h *Hyperlapse) annotateStep(ctx context.Context, gen uint64) {
	h.mu.Lock()
	records := h.reel.Items()
	enabled := h.elevationEnabledLocked()
	lookat := h.opts.Lookat
	h.mu.Unlock()

	var elevations []float64
	if enabled {
		locations := make([]geo.Point, len(records))
		for i, r := range records {
			locations[i] = r.Location
		}
		elevations = h.batchElevation(ctx, locations)
	}

	h.mu.Lock()
	if h.gen != gen {
		h.mu.Unlock()
		return
	}
	for i, r := range records {
		if elevations != nil {
			r.Elevation = elevations[i]
		} else {
			r.Elevation = UnknownElevation
		}
	}
	h.mu.Unlock()

	if lookat != nil && enabled {
		h.refreshLookatElevation(ctx, *lookat)
	}

	h.mu.Lock()
	if h.gen != gen {
		h.mu.Unlock()
		return
	}
	events := []Event{{Type: EventRouteComplete, Points: h.reel.Items()}}
	if h.cancel {
		events = append(events, h.cancelLocked())
	} else {
		h.stage = stageImages
		h.pending = 0
	}
	h.mu.Unlock()

	h.emit(events...)
}

func (h *Hyperlapse) elevationEnabledLocked() bool {
	return h.opts.UseElevation && !h.elevationDisabled && h.elev != nil
}

// refreshLookatElevation looks up the look-at target's elevation when
// elevation is still enabled. Record elevations are left untouched.
func (h *Hyperlapse) refreshLookatElevation(ctx context.Context, target geo.Point) {
	h.mu.Lock()
	enabled := h.elevationEnabledLocked()
	h.mu.Unlock()
	if !enabled {
		return
	}

	if res := h.batchElevation(ctx, []geo.Point{target}); res != nil {
		h.mu.Lock()
		h.lookatElevation = res[0]
		h.mu.Unlock()
	}
}

// batchElevation returns one elevation per location, or nil after disabling
// elevation for the session when the lookup fails.
func (h *Hyperlapse) batchElevation(ctx context.Context, locations []geo.Point) []float64 {
	res, err := h.elev.BatchElevation(ctx, locations)
	if err == nil && len(res) != len(locations) {
		err = fmt.Errorf("got %d elevations for %d locations", len(res), len(locations))
	}
	if err == nil {
		return res
	}

	if errors.Is(err, ErrOverQuota) {
		Logf("Over elevation query limit.")
	} else {
		Logf("Elevation lookup failed, disabling elevation: %v", err)
	}
	h.mu.Lock()
	h.elevationDisabled = true
	h.mu.Unlock()
	return nil
}

// ElevationEnabled reports whether elevation lookups are configured and have
// not been switched off by a failure.
func (h *Hyperlapse) ElevationEnabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.elevationEnabledLocked()
}

// LookatElevation returns the last looked-up elevation of the look-at target.
func (h *Hyperlapse) LookatElevation() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lookatElevation
}
