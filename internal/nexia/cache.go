package nexia

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Refresh fetches the house snapshot unconditionally, replacing the cache.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: Authentication, transport or decode failure
func (c *Client) Refresh(ctx context.Context) error {
	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()
	return c.fetchLocked(ctx)
}

// ensureFresh fetches a snapshot when none exists or the current one has
// aged past the update interval. The check runs twice, once optimistically
// under the read lock and again after acquiring the fetch lock, so waiters
// queued behind an in-flight fetch reuse its result instead of fetching
// again.
func (c *Client) ensureFresh(ctx context.Context) error {
	c.stateMu.RLock()
	stale := c.needsUpdate()
	c.stateMu.RUnlock()
	if !stale {
		return nil
	}

	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	c.stateMu.RLock()
	stale = c.needsUpdate()
	c.stateMu.RUnlock()
	if !stale {
		return nil
	}

	return c.fetchLocked(ctx)
}

// needsUpdate reports whether the snapshot must be fetched. Caller must
// hold stateMu (read or write).
//
// A snapshot aged exactly the interval is still fresh; staleness requires
// strictly more time to have passed.
func (c *Client) needsUpdate() bool {
	if c.snap == nil {
		return true
	}
	if c.updateInterval == UpdateManual {
		return false
	}
	return c.now().Sub(c.lastUpdate) > c.updateInterval
}

// fetchLocked performs the house GET and installs the new snapshot.
// Caller must hold fetchMu.
func (c *Client) fetchLocked(ctx context.Context) error {
	if err := c.session.ensureAuthenticated(ctx); err != nil {
		return err
	}

	houseID := c.session.currentHouseID()
	if houseID == 0 {
		return fmt.Errorf("%w: no house id", ErrNotLoggedIn)
	}

	result, err := c.session.get(ctx, fmt.Sprintf("/houses/%d", houseID))
	if err != nil {
		return err
	}

	var house linksEnvelope
	if err := json.Unmarshal(result, &house); err != nil {
		return fmt.Errorf("nexia: decoding house response: %w", err)
	}
	if len(house.Links.Child) == 0 {
		return fmt.Errorf("nexia: house response contains no devices group")
	}
	items := house.Links.Child[0].Data.Items

	c.stateMu.Lock()
	c.snap = newSnapshot(c, items)
	c.lastUpdate = c.now()
	zones := 0
	for _, t := range c.snap.thermostats {
		zones += len(t.zones)
	}
	c.stateMu.Unlock()

	if c.logger != nil {
		c.logger.Debug("snapshot refreshed",
			"house_id", houseID,
			"thermostats", len(items),
			"zones", zones,
		)
	}
	return nil
}

// Thermostats returns all thermostats in the house, refreshing the snapshot
// if it is stale.
func (c *Client) Thermostats(ctx context.Context) ([]*Thermostat, error) {
	if err := c.ensureFresh(ctx); err != nil {
		return nil, err
	}

	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	out := make([]*Thermostat, len(c.snap.thermostats))
	copy(out, c.snap.thermostats)
	return out, nil
}

// Thermostat returns the thermostat with the given id.
//
// An id of 0 selects the sole thermostat in the house; it is an error if
// the house has more than one.
//
// Returns:
//   - *Thermostat: The selected thermostat
//   - error: ErrThermostatNotFound (listing known ids) or
//     ErrAmbiguousThermostat
func (c *Client) Thermostat(ctx context.Context, id int64) (*Thermostat, error) {
	thermostats, err := c.Thermostats(ctx)
	if err != nil {
		return nil, err
	}

	if id == 0 {
		switch len(thermostats) {
		case 1:
			return thermostats[0], nil
		case 0:
			return nil, fmt.Errorf("%w: house has no thermostats", ErrThermostatNotFound)
		default:
			return nil, fmt.Errorf("%w: house has %d", ErrAmbiguousThermostat, len(thermostats))
		}
	}

	var known []string
	for _, t := range thermostats {
		if t.ID() == id {
			return t, nil
		}
		known = append(known, fmt.Sprintf("%d", t.ID()))
	}
	sort.Strings(known)
	return nil, fmt.Errorf("%w: id %d (known: %s)", ErrThermostatNotFound, id, strings.Join(known, ", "))
}

// Zone returns the zone with the given id, searching every thermostat.
func (c *Client) Zone(ctx context.Context, id int64) (*Zone, error) {
	thermostats, err := c.Thermostats(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range thermostats {
		for _, z := range t.Zones() {
			if z.ID() == id {
				return z, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: id %d", ErrZoneNotFound, id)
}

// Zones returns the thermostat's zones.
func (t *Thermostat) Zones() []*Zone {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Zone, len(t.zones))
	copy(out, t.zones)
	return out
}

// =============================================================================
// Write Confirmation Merge
// =============================================================================

// mergeThermostat applies a POST response fragment to the cached thermostat
// with the matching id. Unknown ids are ignored; the next poll reconciles.
func (c *Client) mergeThermostat(fragment map[string]any) {
	id, ok := asInt64(fragment["id"])
	if !ok {
		return
	}

	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.snap == nil {
		return
	}
	for _, t := range c.snap.thermostats {
		if tid, ok := asInt64(t.attrs["id"]); ok && tid == id {
			_, hasZones := fragment["zones"]
			for k, v := range fragment {
				t.attrs[k] = v
			}
			if hasZones {
				t.rebuildZones()
			}
			return
		}
	}
}

// mergeZone applies a POST response fragment to the cached zone with the
// matching id.
func (c *Client) mergeZone(fragment map[string]any) {
	id, ok := asInt64(fragment["id"])
	if !ok {
		return
	}

	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.snap == nil {
		return
	}
	for _, t := range c.snap.thermostats {
		for _, z := range t.zones {
			if zid, ok := asInt64(z.attrs["id"]); ok && zid == id {
				for k, v := range fragment {
					z.attrs[k] = v
				}
				return
			}
		}
	}
}
