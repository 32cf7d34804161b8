package engine

// Diagnostics collects the tolerable malformations seen while parsing one
// message. Rules turn them into indicators.
type Diagnostics struct {
	MalformedHeaders   int
	FirstMalformedLine int
	UnknownEncodings   []string
	DecodeErrors       []string
	MalformedMIME      []string
	Truncations        []string
}

func (d *Diagnostics) malformedHeader(line int) {
	if d.MalformedHeaders == 0 {
		d.FirstMalformedLine = line
	}
	d.MalformedHeaders++
}

func (d *Diagnostics) unknownEncoding(enc string) {
	d.UnknownEncodings = appendOnce(d.UnknownEncodings, enc)
}

func (d *Diagnostics) decodeError(detail string) {
	d.DecodeErrors = appendOnce(d.DecodeErrors, detail)
}

func (d *Diagnostics) malformedMIME(detail string) {
	d.MalformedMIME = appendOnce(d.MalformedMIME, detail)
}

func (d *Diagnostics) truncated(detail string) {
	d.Truncations = appendOnce(d.Truncations, detail)
}

func appendOnce(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
