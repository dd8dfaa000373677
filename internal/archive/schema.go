package archive

import (
	_ "embed"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/roach88/prova/internal/errs"
)

//go:embed schema.cue
var schemaCUE string

// validateGraph checks data.json against the #Graph definition.
//
// A fresh CUE context is used per call; contexts are not safe for
// concurrent use and readers may run concurrently.
func validateGraph(data []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return errs.Wrap(errs.CorruptArchive, err, "compile graph schema")
	}
	def := schema.LookupPath(cue.ParsePath("#Graph"))

	expr, err := cuejson.Extract(DataEntry, data)
	if err != nil {
		return errs.Wrap(errs.CorruptArchive, err, "%s is not valid JSON", DataEntry).WithField(DataEntry)
	}
	v := ctx.BuildExpr(expr)
	if err := v.Err(); err != nil {
		return errs.Wrap(errs.CorruptArchive, err, "%s is not valid JSON", DataEntry).WithField(DataEntry)
	}

	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return schemaError(err)
	}
	return nil
}

// schemaError reports the first CUE violation with its path.
func schemaError(err error) error {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return errs.Wrap(errs.CorruptArchive, err, "%s does not match the graph schema", DataEntry)
	}
	first := list[0]
	field := strings.Join(dataPath(first.Path()), ".")
	if field == "" {
		field = DataEntry
	}
	format, args := first.Msg()
	return errs.New(errs.CorruptArchive, "%s does not match the graph schema: "+format, append([]any{DataEntry}, args...)...).
		WithField(field)
}

// dataPath drops the leading definition selector (#Graph) so the path
// addresses data.json itself.
func dataPath(p []string) []string {
	if len(p) > 0 && strings.HasPrefix(p[0], "#") {
		return p[1:]
	}
	return p
}
