package farm

import "regexp"

// Failure classifies a failed ffmpeg run from its stderr.
type Failure string

const (
	FailureNone           Failure = ""
	FailureEncoderBusy    Failure = "encoder-busy"    // NVENC session limit or device busy; transient.
	FailureMissingInput   Failure = "missing-input"   // An input file or frame does not exist.
	FailureUnknownEncoder Failure = "unknown-encoder" // ffmpeg was built without the encoder.
	FailureBadArgument    Failure = "bad-argument"    // Option or filter rejected.
	FailureOther          Failure = "other"
)

// Pre-compiled stderr patterns, checked in order by Classify.
var (
	reEncoderBusy = regexp.MustCompile(
		`(?i)OpenEncodeSessionEx failed|out of memory \(10\)|` +
			`incompatible client key|No capable devices found|` +
			`Resource temporarily unavailable`)

	reMissingInput = regexp.MustCompile(
		`(?i)No such file or directory|Could not find file with path|` +
			`Impossible to open|Could not open file`)

	reUnknownEncoder = regexp.MustCompile(
		`(?i)Unknown encoder|Encoder .* not found`)

	reBadArgument = regexp.MustCompile(
		`(?i)Unrecognized option|Option not found|` +
			`No such filter|Error parsing (options|filterchain)|Invalid argument`)
)

// Classify returns the first matching failure class of stderr, or
// FailureOther when none match.
func Classify(stderr string) Failure {
	switch {
	case reEncoderBusy.MatchString(stderr):
		return FailureEncoderBusy
	case reMissingInput.MatchString(stderr):
		return FailureMissingInput
	case reUnknownEncoder.MatchString(stderr):
		return FailureUnknownEncoder
	case reBadArgument.MatchString(stderr):
		return FailureBadArgument
	}
	return FailureOther
}

// Retryable reports whether a run failing with f may succeed unchanged.
func (f Failure) Retryable() bool { return f == FailureEncoderBusy }
