package column

import (
	"strings"

	"github.com/koustreak/tablekit/internal/errs"
)

// Validate reports problems keyed by field name. The caller must not submit
// while the map is non-empty.
func Validate(f Field, opts KindOptions) errs.FieldErrors {
	fe := errs.FieldErrors{}
	if strings.TrimSpace(f.Name) == "" {
		fe.Add("name", "Please assign a name to your column")
	}
	if strings.TrimSpace(f.Format) == "" {
		fe.Add("format", "Please select a type for your column")
	} else if f.IsEncrypted && f.Kind(opts).Tag != Text {
		fe.Add("isEncrypted", "Only columns of text type can be encrypted")
	}
	if f.IsIdentity && f.IsArray {
		fe.Add("isIdentity", "Array columns cannot be identity columns")
	}
	if f.ForeignKey != nil {
		fe.Merge("foreignKey.", f.ForeignKey.ForColumn(strings.TrimSpace(f.Name)).Validate())
	}
	return fe
}
