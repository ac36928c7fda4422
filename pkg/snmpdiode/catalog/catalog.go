// Package catalog resolves a device's sysObjectID to a human-readable
// manufacturer and model. The mapping is data: a built-in YAML catalog is
// embedded in the binary and operators can merge their own file on top.
//
// A lookup miss is never an error. Unresolved values are always the
// models.Unknown sentinel.
package catalog

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vpbank/snmp_diode/models"
)

//go:embed catalog.yml
var builtin []byte

// Vendor is one enterprise entry: its display name and products keyed by the
// last sysObjectID arc.
type Vendor struct {
	Name     string            `yaml:"name"`
	Products map[uint64]string `yaml:"products"`
}

// Catalog maps an IANA enterprise number to a Vendor. It is immutable after
// construction and safe for concurrent use.
type Catalog struct {
	vendors map[uint64]Vendor
}

// Default returns the built-in catalog. It panics only if the embedded YAML is
// malformed, which is a build defect.
func Default() *Catalog {
	c, err := Parse(builtin)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded catalog.yml: %v", err))
	}
	return c
}

// Parse decodes a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var vendors map[uint64]Vendor
	if err := yaml.Unmarshal(data, &vendors); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if vendors == nil {
		vendors = make(map[uint64]Vendor)
	}
	return &Catalog{vendors: vendors}, nil
}

// Load returns the built-in catalog with the YAML file at path merged over it.
// Vendor names in the file replace built-in names; products are added or
// replaced individually.
func Load(path string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	base := Default()
	if path == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	extra, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	base.Merge(extra)
	logger.Debug("catalog: merged file", "file", path, "vendors", len(extra.vendors))
	return base, nil
}

// Merge folds other into c. It must not be called concurrently with Lookup.
func (c *Catalog) Merge(other *Catalog) {
	for id, v := range other.vendors {
		cur, ok := c.vendors[id]
		if !ok {
			cur = Vendor{Products: make(map[uint64]string)}
		}
		if cur.Products == nil {
			cur.Products = make(map[uint64]string)
		}
		if v.Name != "" {
			cur.Name = v.Name
		}
		for pid, name := range v.Products {
			cur.Products[pid] = name
		}
		c.vendors[id] = cur
	}
}

// Lookup resolves a dotted sysObjectID such as "1.3.6.1.4.1.9.1.1208".
//
// The identifier must have more than seven arcs. Arc 6 (0-indexed) is the
// enterprise number and the last arc the product. An unknown enterprise
// yields ("unknown", "unknown"); a known enterprise with an unknown product
// yields (vendor, "unknown").
func (c *Catalog) Lookup(sysObjectID string) (manufacturer, deviceType string) {
	manufacturer, deviceType = models.Unknown, models.Unknown

	arcs := strings.Split(normalise(sysObjectID), ".")
	if len(arcs) <= 7 {
		return
	}

	vendorID, err := strconv.ParseUint(arcs[6], 10, 64)
	if err != nil {
		return
	}
	vendor, ok := c.vendors[vendorID]
	if !ok || vendor.Name == "" {
		return
	}
	manufacturer = vendor.Name

	productID, err := strconv.ParseUint(arcs[len(arcs)-1], 10, 64)
	if err != nil {
		return
	}
	if name, ok := vendor.Products[productID]; ok && name != "" {
		deviceType = name
	}
	return
}

// Len returns the number of vendors in the catalog.
func (c *Catalog) Len() int { return len(c.vendors) }

// normalise accepts both gosnmp (".1.3.6...") and net-snmp ("iso.3.6...")
// renderings.
func normalise(oid string) string {
	oid = strings.TrimSpace(oid)
	oid = strings.Trim(oid, `"`)
	oid = strings.TrimPrefix(oid, ".")
	if strings.HasPrefix(oid, "iso.") {
		oid = "1." + strings.TrimPrefix(oid, "iso.")
	}
	return oid
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
