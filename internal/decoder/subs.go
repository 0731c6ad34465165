package decoder

import (
	"github.com/rs/zerolog"

	"github.com/IntuitionAmiga/coreplay/internal/decplugin"
	"github.com/IntuitionAmiga/coreplay/internal/subpicture"
)

// submitSubpicture allocates a subpicture unit and commits its already
// clock-converted timing window. Shared by the primary subtitle track
// and every CC sub-decoder, each on its own channel number.
func submitSubpicture(subs *subpicture.Heap, channel int, u decplugin.SubpictureOutputUnit, log zerolog.Logger) {
	unit, err := subs.Create(subpicture.KindText, channel, 0)
	if err != nil {
		log.Warn().Err(err).Msg("subpicture heap full, unit dropped")
		return
	}
	unit.Payload = u.Payload
	subs.SetTiming(unit, u.Start, u.Stop)
	if err := subs.Ready(unit); err != nil {
		log.Warn().Err(err).Msg("subpicture ready() rejected")
	}
}
