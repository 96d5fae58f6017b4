package tracker

// RSSI bounds applied to every sighting, in dBm.
const (
	MinRSSI = -120
	MaxRSSI = -30
)

// counterLimit is the wrap point used for 16-bit age arithmetic.
const counterLimit = 0xFFFF

// Zone is a proximity bucket.
type Zone uint8

const (
	ZoneImmediate Zone = 0
	ZoneNear      Zone = 1
	ZoneDistant   Zone = 2
)

// String returns the zone name.
func (z Zone) String() string {
	switch z {
	case ZoneImmediate:
		return "IMMEDIATE"
	case ZoneNear:
		return "NEAR"
	case ZoneDistant:
		return "DISTANT"
	default:
		return "UNKNOWN"
	}
}

// Status of a cache entry. Only pending entries are ever marked.
type Status uint8

const (
	// StatusActive entries take part in the report race.
	StatusActive Status = iota

	// StatusMarkedForDelete entries lost the race to a peer and are
	// discarded silently when their delay expires.
	StatusMarkedForDelete
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusMarkedForDelete:
		return "MARKED_FOR_DELETE"
	default:
		return "UNKNOWN"
	}
}

// Entry is one cached asset. DeviceID 0 marks a free slot.
type Entry struct {
	DeviceID    uint16
	Zone        Zone
	Status      Status
	RSSI        int8
	LastHeardAt uint16 // aging counter, seconds
	DeleteAt    uint16 // tick counter (pending) or aging counter (confirmed)
	SampleCount uint16
	SideEffects uint16
}

func (e *Entry) free() bool {
	return e.DeviceID == 0
}

// cache is a fixed-capacity array of entries.
type cache struct {
	entries []Entry
}

func newCache(capacity int) *cache {
	return &cache{entries: make([]Entry, capacity)}
}

func (c *cache) find(deviceID uint16) *Entry {
	if deviceID == 0 {
		return nil
	}
	for i := range c.entries {
		if c.entries[i].DeviceID == deviceID {
			return &c.entries[i]
		}
	}
	return nil
}

// alloc returns the first free slot, or else the slot heard least recently
// (ties go to the lowest index). The displaced entry is returned so the
// caller can account for it; the slot itself is zeroed.
func (c *cache) alloc(now uint16) (*Entry, Entry) {
	oldest := -1
	var oldestAge uint16
	for i := range c.entries {
		e := &c.entries[i]
		if e.free() {
			return e, Entry{}
		}
		age := wrappingElapsed(now, e.LastHeardAt, counterLimit)
		if oldest < 0 || age > oldestAge {
			oldest, oldestAge = i, age
		}
	}
	if oldest < 0 {
		return nil, Entry{}
	}
	evicted := c.entries[oldest]
	c.entries[oldest] = Entry{}
	return &c.entries[oldest], evicted
}

func (c *cache) len() int {
	n := 0
	for i := range c.entries {
		if !c.entries[i].free() {
			n++
		}
	}
	return n
}

func (c *cache) clear() {
	clear(c.entries)
}

func (c *cache) occupied() []Entry {
	var out []Entry
	for _, e := range c.entries {
		if !e.free() {
			out = append(out, e)
		}
	}
	return out
}

// wrappingElapsed returns the time from then to now on a counter that
// wraps at limit.
func wrappingElapsed(now, then, limit uint16) uint16 {
	if now >= then {
		return now - then
	}
	return (limit - then) + now
}

// classifyZone returns the first zone whose threshold rssi meets or
// exceeds, or ZoneDistant.
func classifyZone(rssi int8, thresholds [3]int8) Zone {
	for i, th := range thresholds {
		if rssi >= th {
			return Zone(i)
		}
	}
	return ZoneDistant
}

func clampRSSI(rssi int8) int8 {
	return max(MinRSSI, min(MaxRSSI, rssi))
}
