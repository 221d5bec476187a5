// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package validation

// SeverityTable names the fields whose mismatch is critical or high for one
// data domain. Anything not listed defaults to low. Field names match the
// leaf key of the differing path.
type SeverityTable struct {
	Critical map[string]bool
	High     map[string]bool
}

// Classify returns the severity for a leaf field name.
func (t SeverityTable) Classify(field string) Severity {
	if t.Critical[field] {
		return SeverityCritical
	}
	if t.High[field] {
		return SeverityHigh
	}
	return SeverityLow
}

func fieldSet(fields ...string) map[string]bool {
	m := make(map[string]bool, len(fields))
	for _, f := range fields {
		m[f] = true
	}
	return m
}

// NewSeverityTable builds a table from explicit field lists, used by route
// policies that override the compiled-in defaults.
func NewSeverityTable(critical, high []string) SeverityTable {
	return SeverityTable{Critical: fieldSet(critical...), High: fieldSet(high...)}
}

// defaultSeverityTables holds the compiled-in per-domain field lists.
// A wrong "compatible" flag sells the wrong part; a wrong "confidence" only
// misleads triage, hence the split.
var defaultSeverityTables = map[DataDomain]SeverityTable{
	DomainCompatibility: {
		Critical: fieldSet("compatible", "vehicleTypeId", "linkageId"),
		High:     fieldSet("confidence", "method"),
	},
	DomainPrice: {
		Critical: fieldSet("price", "currency"),
		High:     fieldSet("discountPrice", "vatRate", "priceValidUntil"),
	},
	DomainStock: {
		Critical: fieldSet("inStock", "quantity"),
		High:     fieldSet("warehouse", "deliveryDays"),
	},
	DomainSafety: {
		Critical: fieldSet("safetyApproved", "recallStatus", "hazardClass"),
		High:     fieldSet("certifications", "warnings"),
	},
	DomainReference: {
		Critical: fieldSet("oemReference", "ean", "manufacturerId"),
		High:     fieldSet("supersededBy", "alternativeRefs"),
	},
	DomainVehicleIdentity: {
		Critical: fieldSet("vin", "vehicleTypeId", "engineCode"),
		High:     fieldSet("modelYear", "trim"),
	},
	DomainDiagnostic: {
		Critical: fieldSet("faultCode", "component"),
		High:     fieldSet("likelihood", "recommendation"),
	},
	DomainPageRole: {
		Critical: fieldSet("role"),
		High:     fieldSet("canonical"),
	},
	DomainContent: {
		Critical: fieldSet(),
		High:     fieldSet("title", "description"),
	},
}

// SeverityTableFor returns the severity table for a domain. Unknown domains
// get an empty table (everything low).
func SeverityTableFor(domain DataDomain) SeverityTable {
	if t, ok := defaultSeverityTables[domain]; ok {
		return t
	}
	return SeverityTable{Critical: map[string]bool{}, High: map[string]bool{}}
}
