package contracts

import "fmt"

// Municipality identifies the geographic side of a segment.
// It is either a real municipality or the pooled Overall aggregate.
type Municipality interface {
	isMunicipality()
	String() string
}

// RealMunicipality is an actual municipality row
type RealMunicipality struct {
	ID int64
}

func (RealMunicipality) isMunicipality() {}

func (m RealMunicipality) String() string {
	return fmt.Sprintf("municipality:%d", m.ID)
}

// OverallAggregate pools every real municipality of a commodity
type OverallAggregate struct{}

func (OverallAggregate) isMunicipality() {}

func (OverallAggregate) String() string {
	return "overall"
}

// SegmentKey identifies one forecasting unit
type SegmentKey struct {
	CommodityID  int64
	Municipality Municipality
}

// RealSegment builds the key for a real municipality
func RealSegment(commodityID, municipalityID int64) SegmentKey {
	return SegmentKey{CommodityID: commodityID, Municipality: RealMunicipality{ID: municipalityID}}
}

// OverallSegment builds the key for a commodity's Overall aggregate
func OverallSegment(commodityID int64) SegmentKey {
	return SegmentKey{CommodityID: commodityID, Municipality: OverallAggregate{}}
}

// IsOverall reports whether the key targets the Overall aggregate
func (k SegmentKey) IsOverall() bool {
	_, ok := k.Municipality.(OverallAggregate)
	return ok
}

func (k SegmentKey) String() string {
	return fmt.Sprintf("commodity:%d/%s", k.CommodityID, k.Municipality)
}

// MunicipalityFromID decodes a storage id.
// ⭐ SSOT: the sentinel id is interpreted only here and in MunicipalityID
func MunicipalityFromID(id, overallID int64) Municipality {
	if id == overallID {
		return OverallAggregate{}
	}
	return RealMunicipality{ID: id}
}

// MunicipalityID encodes a Municipality into its storage id
func MunicipalityID(m Municipality, overallID int64) int64 {
	switch v := m.(type) {
	case RealMunicipality:
		return v.ID
	case OverallAggregate:
		return overallID
	default:
		panic(fmt.Sprintf("unknown municipality variant %T", m))
	}
}

// Segments binds the sentinel id for callers that move between keys and rows
type Segments struct {
	OverallID int64
}

// Key decodes a stored (commodity, municipality) pair
func (s Segments) Key(commodityID, municipalityID int64) SegmentKey {
	return SegmentKey{CommodityID: commodityID, Municipality: MunicipalityFromID(municipalityID, s.OverallID)}
}

// ID encodes the municipality side of a key
func (s Segments) ID(k SegmentKey) int64 {
	return MunicipalityID(k.Municipality, s.OverallID)
}

// SegmentPair is the wire and job-payload form of a segment
type SegmentPair struct {
	CommodityID    int64 `json:"commodity_id"`
	MunicipalityID int64 `json:"municipality_id"`
}
