package xmltv

import (
	"bufio"
	"encoding/xml"
	"io"
)

const header = `<?xml version="1.0" encoding="UTF-8"?>`

// WriteMerged writes one XMLTV document holding blocks in order. Blocks are
// written verbatim; duplicates across sources are kept, since players resolve
// them on their own and the structured dataset is where dedup happens.
func WriteMerged(w io.Writer, generator string, blocks []string) error {
	bw := bufio.NewWriterSize(w, 64*1024)
	bw.WriteString(header)
	bw.WriteString(`<tv generator-info-name="`)
	if err := xml.EscapeText(bw, []byte(generator)); err != nil {
		return err
	}
	bw.WriteString("\">\n")
	for _, b := range blocks {
		bw.WriteString(b)
		bw.WriteByte('\n')
	}
	bw.WriteString("</tv>\n")
	return bw.Flush()
}
