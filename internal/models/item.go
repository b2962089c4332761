package models

// Item is one listing offered by the listing source. Only Price is interpreted
// by the game; everything else is display data. Attribute values are whatever
// JSON the ingestion worker stored, numbers included.
type Item struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Price      string         `json:"price"`
	Images     []string       `json:"images"`
	URL        string         `json:"url"`
	Make       string         `json:"make,omitempty"`
	Model      string         `json:"model,omitempty"`
	Year       int            `json:"year,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Candidate is the price-free view of an item shown while voting.
type Candidate struct {
	Index      int            `json:"index"`
	Title      string         `json:"title"`
	Images     []string       `json:"images"`
	Make       string         `json:"make,omitempty"`
	Model      string         `json:"model,omitempty"`
	Year       int            `json:"year,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// ItemSnapshot is the compact record kept in round history.
type ItemSnapshot struct {
	Title string `json:"title"`
	Image string `json:"image,omitempty"`
	Price string `json:"price"`
	URL   string `json:"url"`
	Make  string `json:"make,omitempty"`
	Model string `json:"model,omitempty"`
	Year  int    `json:"year,omitempty"`
}

// Candidate returns the voting view of the item at position idx.
func (it Item) Candidate(idx int) Candidate {
	return Candidate{
		Index:      idx,
		Title:      it.Title,
		Images:     it.Images,
		Make:       it.Make,
		Model:      it.Model,
		Year:       it.Year,
		Attributes: it.Attributes,
	}
}

// Snapshot returns the history record for the item.
func (it Item) Snapshot() ItemSnapshot {
	snap := ItemSnapshot{
		Title: it.Title,
		Price: it.Price,
		URL:   it.URL,
		Make:  it.Make,
		Model: it.Model,
		Year:  it.Year,
	}
	if len(it.Images) > 0 {
		snap.Image = it.Images[0]
	}
	return snap
}

// RoundRecord is one entry of a room's round history.
type RoundRecord struct {
	Round int          `json:"round"`
	Item  ItemSnapshot `json:"item"`
}
