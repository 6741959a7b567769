package fingerprint

// Sentinel values recorded when a rendering capability probe fails. Their
// presence in an extended fingerprint is the headless-browser signal the
// guard acts on, so they are part of the wire contract.
const (
	SentinelHeadless    = "HEADLESS_BROWSER"
	SentinelUnavailable = "UNAVAILABLE"
)

// ProbeState classifies the outcome of an optional capability probe.
type ProbeState int

const (
	// ProbeAvailable means the capability produced a value.
	ProbeAvailable ProbeState = iota

	// ProbeUnavailable means the capability is absent from the environment.
	ProbeUnavailable

	// ProbeErrored means probing the capability raised an error.
	ProbeErrored
)

// Probe is the tagged result of probing one optional capability. Modelling
// the outcome explicitly (instead of passing raw values around) lets
// non-browser callers, such as tests and the server-side API, supply
// deterministic results.
type Probe struct {
	State ProbeState
	Value string
}

// Available builds a successful probe carrying the capability's output.
func Available(value string) Probe { return Probe{State: ProbeAvailable, Value: value} }

// Unavailable builds a probe for an absent capability.
func Unavailable() Probe { return Probe{State: ProbeUnavailable} }

// Errored builds a probe for a capability that raised while being exercised.
func Errored() Probe { return Probe{State: ProbeErrored} }

// Prober supplies the two rendering-capability probes the extended
// fingerprint records: a 2-D drawing surface and a 3-D rendering context.
type Prober interface {
	Canvas() Probe
	WebGL() Probe
}

// Extended is the advanced fingerprint: the basic identity plus the raw
// attributes and the rendering-capability outcomes. Canvas and WebGL hold
// either the probed value or one of the sentinel constants.
type Extended struct {
	Basic      string     `json:"basic"`
	Attributes Attributes `json:"attributes"`
	Canvas     string     `json:"canvas"`
	WebGL      string     `json:"webgl"`
}

// Advanced derives the extended fingerprint. A canvas probe that errors or
// is absent records SentinelHeadless (real browsers always have a canvas, so
// failure indicates an automated client); a failed WebGL probe records
// SentinelUnavailable.
func Advanced(attrs Attributes, prober Prober) Extended {
	ext := Extended{
		Basic:      Basic(attrs),
		Attributes: attrs,
	}

	if p := prober.Canvas(); p.State == ProbeAvailable {
		ext.Canvas = p.Value
	} else {
		ext.Canvas = SentinelHeadless
	}

	if p := prober.WebGL(); p.State == ProbeAvailable {
		ext.WebGL = p.Value
	} else {
		ext.WebGL = SentinelUnavailable
	}

	return ext
}

// HeadlessCanvas reports whether the canvas probe flagged this client.
func (e Extended) HeadlessCanvas() bool { return e.Canvas == SentinelHeadless }

// MissingWebGL reports whether the WebGL probe flagged this client.
func (e Extended) MissingWebGL() bool { return e.WebGL == SentinelUnavailable }
