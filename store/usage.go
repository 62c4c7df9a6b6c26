// Copyright 2025 Lexigate
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GeoLocation is best-effort request origin data attached to ledger
// entries. Empty when resolution failed.
type GeoLocation struct {
	Lat         float64 `bson:"lat,omitempty" json:"lat,omitempty"`
	Lon         float64 `bson:"lon,omitempty" json:"lon,omitempty"`
	City        string  `bson:"city,omitempty" json:"city,omitempty"`
	Region      string  `bson:"region,omitempty" json:"region,omitempty"`
	Country     string  `bson:"country,omitempty" json:"country,omitempty"`
	CountryCode string  `bson:"countryCode,omitempty" json:"countryCode,omitempty"`
}

// UsageRecord is one append-only ledger entry, written after each
// successful metered call.
type UsageRecord struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ClientID        primitive.ObjectID `bson:"clientId" json:"clientId"`
	ClientName      string             `bson:"clientName" json:"clientName"`
	AIType          string             `bson:"idxAiType,omitempty" json:"idxAiType,omitempty"`
	TranslationType string             `bson:"translationType,omitempty" json:"translationType,omitempty"`
	Dialect         string             `bson:"idxdb,omitempty" json:"idxdb,omitempty"`
	Tokens          int64              `bson:"tokens" json:"tokens"`
	Cost            float64            `bson:"cost" json:"cost"`
	Prompt          string             `bson:"prompt,omitempty" json:"prompt,omitempty"`
	GeneratedQuery  string             `bson:"generatedQuery,omitempty" json:"generatedQuery,omitempty"`
	Table           string             `bson:"table,omitempty" json:"table,omitempty"`
	BaseLanguage    string             `bson:"baseLanguage,omitempty" json:"baseLanguage,omitempty"`
	TargetLanguage  string             `bson:"targetLanguage,omitempty" json:"targetLanguage,omitempty"`
	IP              string             `bson:"ip,omitempty" json:"ip,omitempty"`
	Location        *GeoLocation       `bson:"location,omitempty" json:"location,omitempty"`
	Timestamp       time.Time          `bson:"timestamp" json:"timestamp"`
}

// IncrementUsage atomically adds tokens and cost to the client's usage
// aggregate and stamps lastUsed. countRequest additionally bumps
// totalRequests, which only the basic translation tier tracks.
func (s *Store) IncrementUsage(ctx context.Context, apiKey string, tokens int64, cost float64, countRequest bool) error {
	inc := bson.M{
		"usage.tokens": tokens,
		"usage.cost":   cost,
	}
	if countRequest {
		inc["usage.totalRequests"] = int64(1)
	}

	result, err := s.db.Collection(clientsCollection).UpdateOne(ctx,
		bson.M{"apiKey": apiKey},
		bson.M{
			"$inc": inc,
			"$set": bson.M{"usage.lastUsed": time.Now().UTC()},
		})
	if err != nil {
		return fmt.Errorf("failed to update usage: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertUsageRecord appends one ledger entry.
func (s *Store) InsertUsageRecord(ctx context.Context, record *UsageRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	_, err := s.db.Collection(usageRecordsCollection).InsertOne(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}
	return nil
}

// ReportOptions filters a usage report. Period is one of 7days,
// 30days, 90days, year; explicit Start/End take precedence.
type ReportOptions struct {
	ClientID string
	Period   string
	Start    time.Time
	End      time.Time
}

// ReportSummary aggregates the matched ledger entries.
type ReportSummary struct {
	TotalTokens         int64   `bson:"totalTokens" json:"totalTokens"`
	TotalCost           float64 `bson:"totalCost" json:"totalCost"`
	AvgTokensPerRequest float64 `bson:"avgTokensPerRequest" json:"avgTokensPerRequest"`
	Count               int64   `bson:"count" json:"count"`
	TotalRequests       int64   `bson:"totalRequests" json:"totalRequests"`
}

// DayBucket is per-calendar-day usage.
type DayBucket struct {
	Date   DayKey  `bson:"_id" json:"date"`
	Tokens int64   `bson:"tokens" json:"tokens"`
	Cost   float64 `bson:"cost" json:"cost"`
	Count  int64   `bson:"count" json:"count"`
}

// DayKey identifies one calendar day in the report.
type DayKey struct {
	Year  int `bson:"year" json:"year"`
	Month int `bson:"month" json:"month"`
	Day   int `bson:"day" json:"day"`
}

// TopClient ranks a tenant by tokens over the reporting window.
type TopClient struct {
	ClientID            primitive.ObjectID `bson:"_id" json:"clientId"`
	ClientName          string             `bson:"clientName" json:"clientName"`
	TotalTokens         int64              `bson:"totalTokens" json:"totalTokens"`
	TotalCost           float64            `bson:"totalCost" json:"totalCost"`
	AvgTokensPerRequest float64            `bson:"avgTokensPerRequest" json:"avgTokensPerRequest"`
	Count               int64              `bson:"count" json:"count"`
	ByDay               []DayBucket        `bson:"-" json:"byDay"`
}

// TypeBucket groups token counts by capability label for charts.
type TypeBucket struct {
	Label  string `json:"label"`
	Tokens int64  `json:"tokens"`
}

// UsageReport is the full reporting payload.
type UsageReport struct {
	Records    []UsageRecord `json:"records"`
	Summary    ReportSummary `json:"summary"`
	ByDay      []DayBucket   `json:"byDay"`
	TopClients []TopClient   `json:"topClients"`
	ByTypes    []TypeBucket  `json:"byTypes"`
}

func (opts ReportOptions) filter() (bson.M, error) {
	filter := bson.M{}

	if !opts.Start.IsZero() && !opts.End.IsZero() {
		end := time.Date(opts.End.Year(), opts.End.Month(), opts.End.Day(),
			23, 59, 59, int(999*time.Millisecond), opts.End.Location())
		filter["timestamp"] = bson.M{"$gte": opts.Start, "$lte": end}
	} else {
		now := time.Now().UTC()
		var since time.Time
		switch opts.Period {
		case "7days":
			since = now.AddDate(0, 0, -7)
		case "90days":
			since = now.AddDate(0, 0, -90)
		case "year":
			since = now.AddDate(-1, 0, 0)
		default:
			since = now.AddDate(0, 0, -30)
		}
		filter["timestamp"] = bson.M{"$gte": since}
	}

	if opts.ClientID != "" {
		oid, err := primitive.ObjectIDFromHex(opts.ClientID)
		if err != nil {
			return nil, ErrInvalidID
		}
		filter["clientId"] = oid
	}
	return filter, nil
}

// Report runs the usage aggregations over the ledger.
func (s *Store) Report(ctx context.Context, opts ReportOptions) (*UsageReport, error) {
	filter, err := opts.filter()
	if err != nil {
		return nil, err
	}

	coll := s.db.Collection(usageRecordsCollection)

	cursor, err := coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch usage records: %w", err)
	}
	records := make([]UsageRecord, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode usage records: %w", err)
	}

	report := &UsageReport{
		Records: records,
		ByTypes: groupByType(records),
	}

	// Summary
	sumCursor, err := coll.Aggregate(ctx, []bson.M{
		{"$match": filter},
		{"$group": bson.M{
			"_id":                 nil,
			"totalTokens":         bson.M{"$sum": "$tokens"},
			"totalCost":           bson.M{"$sum": "$cost"},
			"avgTokensPerRequest": bson.M{"$avg": "$tokens"},
			"count":               bson.M{"$sum": 1},
			"totalRequests":       bson.M{"$sum": 1},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate summary: %w", err)
	}
	var summaries []ReportSummary
	if err := sumCursor.All(ctx, &summaries); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}
	if len(summaries) > 0 {
		report.Summary = summaries[0]
	}

	// Per-day buckets
	report.ByDay, err = s.byDay(ctx, filter)
	if err != nil {
		return nil, err
	}

	// Top clients only make sense for the unfiltered view.
	if opts.ClientID == "" {
		report.TopClients, err = s.topClients(ctx, filter)
		if err != nil {
			return nil, err
		}
	}

	return report, nil
}

func (s *Store) byDay(ctx context.Context, filter bson.M) ([]DayBucket, error) {
	cursor, err := s.db.Collection(usageRecordsCollection).Aggregate(ctx, []bson.M{
		{"$match": filter},
		{"$group": bson.M{
			"_id": bson.M{
				"year":  bson.M{"$year": "$timestamp"},
				"month": bson.M{"$month": "$timestamp"},
				"day":   bson.M{"$dayOfMonth": "$timestamp"},
			},
			"tokens": bson.M{"$sum": "$tokens"},
			"cost":   bson.M{"$sum": "$cost"},
			"count":  bson.M{"$sum": 1},
		}},
		{"$sort": bson.D{
			{Key: "_id.year", Value: 1},
			{Key: "_id.month", Value: 1},
			{Key: "_id.day", Value: 1},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate daily usage: %w", err)
	}
	buckets := make([]DayBucket, 0)
	if err := cursor.All(ctx, &buckets); err != nil {
		return nil, fmt.Errorf("failed to decode daily usage: %w", err)
	}
	return buckets, nil
}

func (s *Store) topClients(ctx context.Context, filter bson.M) ([]TopClient, error) {
	cursor, err := s.db.Collection(usageRecordsCollection).Aggregate(ctx, []bson.M{
		{"$match": filter},
		{"$group": bson.M{
			"_id":                 "$clientId",
			"clientName":          bson.M{"$first": "$clientName"},
			"totalTokens":         bson.M{"$sum": "$tokens"},
			"totalCost":           bson.M{"$sum": "$cost"},
			"avgTokensPerRequest": bson.M{"$avg": "$tokens"},
			"count":               bson.M{"$sum": 1},
		}},
		{"$sort": bson.M{"totalTokens": -1}},
		{"$limit": 10},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate top clients: %w", err)
	}
	top := make([]TopClient, 0)
	if err := cursor.All(ctx, &top); err != nil {
		return nil, fmt.Errorf("failed to decode top clients: %w", err)
	}

	for i := range top {
		clientFilter := bson.M{"clientId": top[i].ClientID}
		for k, v := range filter {
			clientFilter[k] = v
		}
		byDay, err := s.byDay(ctx, clientFilter)
		if err != nil {
			return nil, err
		}
		top[i].ByDay = byDay
	}
	return top, nil
}

// groupByType buckets token counts by capability label.
func groupByType(records []UsageRecord) []TypeBucket {
	totals := make(map[string]int64)
	var order []string

	for _, r := range records {
		label := "Unknown"
		switch r.AIType {
		case TierPromptAI:
			label = TierPromptAI
		case TierSearchAI:
			label = TierSearchAI
		case TierTranslateAI:
			sub := strings.ToLower(r.TranslationType)
			switch sub {
			case TranslationBasic, TranslationAdvanced, TranslationExpert:
				label = "TAI: " + strings.ToUpper(sub[:1]) + sub[1:]
			default:
				label = "TAI: Unknown"
			}
		}
		if _, seen := totals[label]; !seen {
			order = append(order, label)
		}
		totals[label] += r.Tokens
	}

	buckets := make([]TypeBucket, 0, len(order))
	for _, label := range order {
		buckets = append(buckets, TypeBucket{Label: label, Tokens: totals[label]})
	}
	return buckets
}
