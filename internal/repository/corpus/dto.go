package corpus

import (
	"encoding/binary"
	"math"

	"github.com/ragline/ragline/internal/domain/passage"
)

// passageFields flattens a passage into hash fields. Reserved fields carry
// the __ prefix; metadata keys are stored as-is and indexed as tags when
// declared in Config.FilterFields.
func passageFields(p *passage.Passage, vector []float32) map[string]string {
	fields := make(map[string]string, len(p.Metadata())+2)
	fields["__text"] = p.Text()
	fields["__vector"] = vectorToBytes(vector)
	for k, v := range p.Metadata() {
		fields[k] = v
	}
	return fields
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per
// float, little-endian) matching the FT.SEARCH BLOB format.
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
