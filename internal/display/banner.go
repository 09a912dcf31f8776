package display

import (
	"fmt"
	"io"

	"github.com/backmassage/autoencode/internal/term"
)

const banner = `            _                                _
  __ _ _  _| |_ ___  ___ _ _  __ ___  __| |___
 / _` + "`" + ` | || |  _/ _ \/ -_) ' \/ _/ _ \/ _` + "`" + ` / -_)
 \__,_|\_,_|\__\___/\___|_||_\__\___/\__,_\___|
`

// PrintBanner writes the ASCII banner and version line to w.
func PrintBanner(w io.Writer, version string) {
	fmt.Fprint(w, term.Paint(term.Magenta, banner))
	fmt.Fprintf(w, "  %s\n\n", term.Paint(term.Dim, "render completion transcoder "+version))
}
