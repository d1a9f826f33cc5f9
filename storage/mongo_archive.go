package storage

import (
	"context"
	"time"

	"github.com/mmcloughlin/geohash"
	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const listingsCollection = "listings"

// listingDocument is the stored shape of an archived listing.
type listingDocument struct {
	RequestID        string    `bson:"request_id"`
	Row              int       `bson:"row"`
	IngestedAt       time.Time `bson:"ingested_at"`
	Source           string    `bson:"source"`
	URL              string    `bson:"url"`
	Title            string    `bson:"title"`
	Type             string    `bson:"type"`
	Price            float64   `bson:"price"`
	PriceDisplay     string    `bson:"price_display"`
	Bedrooms         int       `bson:"bedrooms"`
	Bathrooms        int       `bson:"bathrooms"`
	Area             float64   `bson:"area"`
	AreaUnit         string    `bson:"area_unit"`
	Address          string    `bson:"address,omitempty"`
	ImageURL         string    `bson:"image_url,omitempty"`
	Lat              *float64  `bson:"lat,omitempty"`
	Lon              *float64  `bson:"lon,omitempty"`
	Geohash          string    `bson:"geohash,omitempty"`
	DistanceKm       *float64  `bson:"distance_km,omitempty"`
	PricePerOccupant float64   `bson:"price_per_person"`
	PricePerArea     float64   `bson:"price_per_area"`
}

// MongoArchiver stores one document per ingested listing. Listings with
// coordinates carry a geohash so nearby ones can be grouped by prefix.
type MongoArchiver struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoArchiver connects to uri, verifies the connection and ensures the
// collection's indexes.
func NewMongoArchiver(ctx context.Context, uri, database string) (*MongoArchiver, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, eris.Wrap(err, "mongo: connect")
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, eris.Wrap(err, "mongo: ping")
	}

	coll := client.Database(database).Collection(listingsCollection)
	_, err = coll.Indexes().CreateMany(connectCtx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "url", Value: 1}}},
		{Keys: bson.D{{Key: "geohash", Value: 1}}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, eris.Wrap(err, "mongo: create indexes")
	}

	return &MongoArchiver{client: client, coll: coll}, nil
}

func (m *MongoArchiver) Archive(ctx context.Context, e ArchiveEntry) error {
	if _, err := m.coll.InsertOne(ctx, newListingDocument(e)); err != nil {
		return eris.Wrapf(err, "mongo: insert %s", e.RequestID)
	}
	return nil
}

func (m *MongoArchiver) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func newListingDocument(e ArchiveEntry) listingDocument {
	r := e.Record
	doc := listingDocument{
		RequestID:        e.RequestID,
		Row:              e.Row,
		IngestedAt:       e.IngestedAt.UTC(),
		Source:           r.Source,
		URL:              r.SourceURL,
		Title:            r.Title,
		Type:             r.PropertyType,
		Price:            r.PriceAmount,
		PriceDisplay:     r.PriceDisplay,
		Bedrooms:         r.BedroomCount,
		Bathrooms:        r.BathroomCount,
		Area:             r.AreaValue,
		AreaUnit:         string(r.AreaUnit),
		Address:          r.Address,
		ImageURL:         r.ImageURL,
		DistanceKm:       r.DistanceKm,
		PricePerOccupant: r.PricePerOccupant,
		PricePerArea:     r.PricePerArea,
	}
	if r.Coordinates != nil {
		lat, lon := r.Coordinates.Lat, r.Coordinates.Lon
		doc.Lat, doc.Lon = &lat, &lon
		doc.Geohash = geohash.Encode(lat, lon)
	}
	return doc
}
