package ratemon

// CountMode selects whether EWMA samples measure packets or bytes.
type CountMode int

const (
	CountPackets CountMode = iota
	CountBytes
)

const (
	// MemMaxMin is the smallest non-zero memory cap a Monitor will
	// accept, in bytes. A configured cap below this is rounded up to
	// it rather than rejected, since a cap smaller than one Node plus
	// one Counter can never hold a useful tree.
	MemMaxMin = 4096

	// foldFactor is the fraction of current usage that an unforced
	// fold (triggered by a periodic tick, not by hitting the cap)
	// tries to shrink down to when no memory cap is set; with a cap,
	// it shrinks to memMax instead.
	foldFactor = 0.9

	// forcedFoldGrowth is the factor forcedFold multiplies its eviction
	// threshold by on each pass when the memory cap itself has been
	// exceeded and eviction must make room immediately. Geometric
	// growth guarantees the threshold exceeds any node's rate within a
	// bounded number of passes regardless of how far over thresh live
	// traffic runs, unlike linear growth which can stall indefinitely
	// against traffic many multiples over thresh.
	forcedFoldGrowth = 2

	// forcedFoldMaxPasses bounds forcedFold's threshold-raising loop.
	// With geometric growth this is never actually reached by a
	// satisfiable memory cap: doubling a positive threshold this many
	// times exceeds the full int64 range, so every non-root node's
	// rate is eventually condemned. It remains only as a backstop
	// against an unsatisfiable cap (one set below what the root node and
	// its own counters occupy), which forcedFold reports back to its caller rather
	// than silently leaving the tree over budget.
	forcedFoldMaxPasses = 64
)

// Config configures a new Monitor. All fields are validated by
// New; a Config that fails validation leaves no Monitor behind.
type Config struct {
	// Type selects packet or byte counting for every EWMA sample.
	Type CountMode

	// Offset is the byte offset of the IPv4 header within each
	// packet's Bytes().
	Offset int

	// Ratio is the fraction of forward-direction packets pushed
	// through Push that are sampled into the EWMAs, in (0, 1]. It has
	// no effect on Pull, where every packet is a sample.
	Ratio float64

	// Thresh is the operator-facing traffic threshold, in samples per
	// second, that triggers zoom-in when exceeded. It is stored
	// internally after rescaling by Ratio so it can be compared
	// directly against sampled (not real) rates.
	Thresh int64

	// MemMaxKiB bounds total tree memory, in KiB. Zero means
	// unbounded. A non-zero value below MemMaxMin is rounded up.
	MemMaxKiB uint64

	// Annotate enables the anno_level / packet-annotation feature. If
	// false, SetAnnoLevel still records ticks but updateRates never
	// consults them.
	Annotate bool

	// EWMAIntervalTicks is the averaging window, in ticks, given to
	// every new EWMA. Zero selects a 1-second window at the clock's
	// frequency.
	EWMAIntervalTicks float64

	// Sampler decides whether a given forward Push packet is sampled.
	// Nil selects math/rand/v2-backed sampling at Ratio. Tests inject
	// a deterministic Sampler to make Push's sampling reproducible.
	Sampler func() bool

	// OnEvent, if set, is called for notable occurrences: "zoom_in",
	// "fold" (only when at least one node was evicted), and
	// "memmax_exceeded" (allocation refused under the memory cap). It
	// is invoked synchronously while the monitor lock is held, so
	// implementations must not call back into the Monitor; hand the
	// event to a notify.Notifier, which dispatches asynchronously.
	OnEvent func(kind, detail string)
}
