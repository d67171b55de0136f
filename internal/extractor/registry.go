package extractor

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/velofit/framesearch/internal/pipeline"
)

// For returns the extractor implementation for a vendor. Vendors are bound
// at configuration time; an unknown vendor is a caller bug.
func For(vendor pipeline.Vendor, logger *zap.Logger) (pipeline.Extractor, error) {
	switch vendor {
	case pipeline.VendorKross:
		return NewKrossExtractor(logger), nil
	case pipeline.VendorTrek:
		return NewTrekExtractor(logger), nil
	default:
		return nil, fmt.Errorf("no extractor for vendor %q", vendor)
	}
}
