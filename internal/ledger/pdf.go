package ledger

import (
	"bytes"
	"fmt"
	"strings"
)

// renderPDF writes a minimal single-font PDF (1.4, Courier, A4-ish letter
// pages) from pre-wrapped text lines. The format is deliberately tiny: the
// attestation needs a stable printable artifact, not typography.
func renderPDF(lines []string) []byte {
	const linesPerPage = 54
	var pages [][]string
	for start := 0; start < len(lines); start += linesPerPage {
		end := start + linesPerPage
		if end > len(lines) {
			end = len(lines)
		}
		pages = append(pages, lines[start:end])
	}
	if len(pages) == 0 {
		pages = [][]string{{""}}
	}

	// Object layout: 1 catalog, 2 page tree, 3 font, then page and content
	// objects pairwise.
	numObjects := 3 + 2*len(pages)
	bodies := make([]string, numObjects+1)

	pageRefs := make([]string, len(pages))
	for i := range pages {
		pageRefs[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	bodies[1] = "<< /Type /Catalog /Pages 2 0 R >>"
	bodies[2] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>",
		strings.Join(pageRefs, " "), len(pages))
	bodies[3] = "<< /Type /Font /Subtype /Type1 /BaseFont /Courier >>"

	for i, page := range pages {
		var content strings.Builder
		content.WriteString("BT /F1 10 Tf 40 760 Td 13 TL\n")
		for _, line := range page {
			content.WriteString(fmt.Sprintf("(%s) Tj T*\n", escapePDFString(line)))
		}
		content.WriteString("ET")

		pageObj := 4 + 2*i
		contentObj := pageObj + 1
		bodies[pageObj] = fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
			contentObj)
		bodies[contentObj] = fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream",
			content.Len(), content.String())
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, numObjects+1)
	for i := 1; i <= numObjects; i++ {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i, bodies[i])
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", numObjects+1)
	for i := 1; i <= numObjects; i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		numObjects+1, xref)
	return buf.Bytes()
}

func escapePDFString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
