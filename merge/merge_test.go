package merge

import (
	"errors"
	"testing"
	"time"

	"imovel-search/models"
	"imovel-search/scraper"
)

func defaultOpts() Options {
	return Options{PriceTolerance: 0.05, SizeTolerance: 0.10}
}

func rec(source, id string, price float64) *models.ListingRecord {
	return &models.ListingRecord{
		Source: source, SourceID: id, Price: price,
		Title: "Apartamento " + id, City: "São Paulo",
		FetchedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestMergeDedupBySourceID(t *testing.T) {
	outcomes := []scraper.Outcome{
		{Source: "zapimoveis", Records: []*models.ListingRecord{
			rec("zapimoveis", "1", 300000),
			rec("zapimoveis", "2", 400000),
			rec("zapimoveis", "1", 300000), // duplicate id
		}},
	}

	rs := Merge("fp", outcomes, defaultOpts())
	if len(rs.Records) != 2 {
		t.Fatalf("records = %d; want 2", len(rs.Records))
	}
	if rs.Provenance != models.ProvenanceLive {
		t.Errorf("provenance = %s; want live", rs.Provenance)
	}
}

func TestMergeSimilarityAcrossSources(t *testing.T) {
	a := rec("zapimoveis", "z1", 500000)
	a.Title = "Apartamento 3 quartos Pinheiros"
	a.SizeM2 = 90
	b := rec("vivareal", "v9", 510000) // within 5% of 500000
	b.Title = "  apartamento 3 QUARTOS pinheiros "
	b.SizeM2 = 92
	b.Bathrooms = 2 // more complete record

	rs := Merge("fp", []scraper.Outcome{
		{Source: "zapimoveis", Records: []*models.ListingRecord{a}},
		{Source: "vivareal", Records: []*models.ListingRecord{b}},
	}, defaultOpts())

	if len(rs.Records) != 1 {
		t.Fatalf("records = %d; want 1 after cross-source dedup", len(rs.Records))
	}
	if rs.Records[0].SourceID != "v9" {
		t.Errorf("kept %s; want the more complete record v9", rs.Records[0].SourceID)
	}
}

func TestMergeSimilarityRespectsTolerance(t *testing.T) {
	a := rec("zapimoveis", "z1", 500000)
	a.Title = "Casa em Moema"
	b := rec("vivareal", "v1", 600000) // 20% apart, not the same listing
	b.Title = "Casa em Moema"

	rs := Merge("fp", []scraper.Outcome{
		{Source: "zapimoveis", Records: []*models.ListingRecord{a, b}},
	}, defaultOpts())

	if len(rs.Records) != 2 {
		t.Fatalf("records = %d; want 2, prices outside tolerance", len(rs.Records))
	}
}

func TestMergeTieBreakPrefersFresherRecord(t *testing.T) {
	old := rec("zapimoveis", "1", 300000)
	fresh := rec("zapimoveis", "1", 300000)
	fresh.FetchedAt = old.FetchedAt.Add(time.Hour)

	rs := Merge("fp", []scraper.Outcome{
		{Source: "zapimoveis", Records: []*models.ListingRecord{old, fresh}},
	}, defaultOpts())

	if len(rs.Records) != 1 {
		t.Fatalf("records = %d; want 1", len(rs.Records))
	}
	if !rs.Records[0].FetchedAt.Equal(fresh.FetchedAt) {
		t.Error("equal-completeness duplicate did not keep the fresher fetch")
	}
}

func TestMergeIdempotence(t *testing.T) {
	base := []*models.ListingRecord{
		rec("zapimoveis", "1", 300000),
		rec("zapimoveis", "2", 400000),
		rec("vivareal", "9", 350000),
	}
	doubled := append(append([]*models.ListingRecord{}, base...), base...)

	once := Merge("fp", []scraper.Outcome{{Source: "x", Records: base}}, defaultOpts())
	twice := Merge("fp", []scraper.Outcome{{Source: "x", Records: doubled}}, defaultOpts())

	if len(once.Records) != len(twice.Records) {
		t.Fatalf("idempotence violated: %d vs %d records", len(once.Records), len(twice.Records))
	}
	for i := range once.Records {
		if once.Records[i].SourceID != twice.Records[i].SourceID {
			t.Errorf("record %d differs: %s vs %s", i, once.Records[i].SourceID, twice.Records[i].SourceID)
		}
	}
}

func TestMergeOrderingDeterministic(t *testing.T) {
	forward := []scraper.Outcome{
		{Source: "a", Records: []*models.ListingRecord{rec("a", "1", 300000), rec("a", "2", 100000)}},
		{Source: "b", Records: []*models.ListingRecord{rec("b", "3", 200000), rec("b", "4", 200000)}},
	}
	reversed := []scraper.Outcome{forward[1], forward[0]}

	x := Merge("fp", forward, defaultOpts())
	y := Merge("fp", reversed, defaultOpts())

	for i := range x.Records {
		if x.Records[i].SourceID != y.Records[i].SourceID {
			t.Fatalf("completion order changed output at %d: %s vs %s",
				i, x.Records[i].SourceID, y.Records[i].SourceID)
		}
	}
	// Ascending by price, ties broken by source then id.
	wantOrder := []string{"2", "3", "4", "1"}
	for i, want := range wantOrder {
		if x.Records[i].SourceID != want {
			t.Errorf("position %d = %s; want %s", i, x.Records[i].SourceID, want)
		}
	}
}

func TestMergeProvenancePartial(t *testing.T) {
	rs := Merge("fp", []scraper.Outcome{
		{Source: "zapimoveis", Records: []*models.ListingRecord{rec("zapimoveis", "1", 300000)}},
		{Source: "vivareal", Err: scraper.Timeout("vivareal", errors.New("deadline"))},
	}, defaultOpts())

	if rs.Provenance != models.ProvenancePartial {
		t.Errorf("provenance = %s; want partial-live", rs.Provenance)
	}
}

func TestMergeStats(t *testing.T) {
	a := rec("z", "1", 100000)
	a.PropertyType = "apartment"
	b := rec("z", "2", 300000)
	b.PropertyType = "house"
	c := rec("z", "3", 0) // unknown price stays out of price aggregates
	c.PropertyType = "apartment"

	rs := Merge("fp", []scraper.Outcome{{Source: "z", Records: []*models.ListingRecord{a, b, c}}}, defaultOpts())

	if rs.Stats.Count != 3 {
		t.Errorf("count = %d; want 3", rs.Stats.Count)
	}
	if rs.Stats.MinPrice != 100000 || rs.Stats.MaxPrice != 300000 {
		t.Errorf("min/max = %.0f/%.0f; want 100000/300000", rs.Stats.MinPrice, rs.Stats.MaxPrice)
	}
	if rs.Stats.AvgPrice != 200000 {
		t.Errorf("avg = %.2f; want 200000", rs.Stats.AvgPrice)
	}
	if rs.Stats.ByType["apartment"] != 2 || rs.Stats.ByType["house"] != 1 {
		t.Errorf("by-type counts wrong: %v", rs.Stats.ByType)
	}
}
