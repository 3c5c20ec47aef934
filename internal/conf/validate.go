package conf

import (
	"github.com/rackbay/rackbay/internal/errors"
)

// ValidateSettings checks the loaded settings for values the engine cannot
// start with. Validation failures are configuration errors, not user errors:
// the embedded host passes options programmatically and gets them back here.
func ValidateSettings(s *Settings) error {
	switch s.Engine.ProcessMode {
	case ProcessModeRack, ProcessModePatchbay:
	default:
		return errors.Newf("invalid engine.processmode %q", s.Engine.ProcessMode).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("processmode", s.Engine.ProcessMode).
			Build()
	}

	if s.Engine.BufferSize == 0 {
		return errors.Newf("engine.buffersize must be positive").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if s.Engine.SampleRate <= 0 {
		return errors.Newf("engine.samplerate must be positive, got %g", s.Engine.SampleRate).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if s.Engine.UIBridgesTimeout == 0 {
		s.Engine.UIBridgesTimeout = 4000
	}
	if s.Standalone.Channels <= 0 || s.Standalone.Channels > 64 {
		return errors.Newf("standalone.channels out of range: %d", s.Standalone.Channels).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}
