package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	interfaces "github.com/sheikh-saqib/rental-returns-ledger/internal/interfaces"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/models"
)

const (
	rentalsCollection = "rentals"
	moviesCollection  = "movies"
)

type customerDoc struct {
	ID     string `bson:"_id"`
	Name   string `bson:"name"`
	Phone  string `bson:"phone"`
	IsGold bool   `bson:"isGold"`
}

type movieSnapshotDoc struct {
	ID              string               `bson:"_id"`
	Title           string               `bson:"title"`
	DailyRentalRate primitive.Decimal128 `bson:"dailyRentalRate"`
}

type rentalDoc struct {
	ID           string                `bson:"_id"`
	Customer     customerDoc           `bson:"customer"`
	Movie        movieSnapshotDoc      `bson:"movie"`
	DateOut      time.Time             `bson:"dateOut"`
	DateReturned *time.Time            `bson:"dateReturned"`
	RentalFee    *primitive.Decimal128 `bson:"rentalFee"`
}

type genreDoc struct {
	ID   string `bson:"_id"`
	Name string `bson:"name"`
}

type movieDoc struct {
	ID              string               `bson:"_id"`
	Title           string               `bson:"title"`
	Genre           genreDoc             `bson:"genre"`
	NumberInStock   int64                `bson:"numberInStock"`
	DailyRentalRate primitive.Decimal128 `bson:"dailyRentalRate"`
}

// MongoStore keeps rentals and movies as documents, the way the catalog
// service lays them out: snapshots are embedded sub-documents.
type MongoStore struct {
	rentals *mongo.Collection
	movies  *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		rentals: db.Collection(rentalsCollection),
		movies:  db.Collection(moviesCollection),
	}
}

// Connect opens a client and checks the primary is reachable.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

// EnsureIndexes creates the lookup index used by FindLatestRental.
func (m *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := m.rentals.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "customer._id", Value: 1},
			{Key: "movie._id", Value: 1},
			{Key: "dateOut", Value: -1},
		},
	})
	return err
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	return primitive.ParseDecimal128(d.String())
}

func fromDecimal128(d primitive.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(d.String())
}

func toRentalDoc(r models.Rental) (rentalDoc, error) {
	rate, err := toDecimal128(r.Movie.DailyRentalRate)
	if err != nil {
		return rentalDoc{}, err
	}
	doc := rentalDoc{
		ID:           r.ID,
		Customer:     customerDoc{ID: r.Customer.ID, Name: r.Customer.Name, Phone: r.Customer.Phone, IsGold: r.Customer.IsGold},
		Movie:        movieSnapshotDoc{ID: r.Movie.ID, Title: r.Movie.Title, DailyRentalRate: rate},
		DateOut:      r.DateOut,
		DateReturned: r.DateReturned,
	}
	if r.RentalFee != nil {
		fee, err := toDecimal128(*r.RentalFee)
		if err != nil {
			return rentalDoc{}, err
		}
		doc.RentalFee = &fee
	}
	return doc, nil
}

func (d rentalDoc) toModel() (models.Rental, error) {
	rate, err := fromDecimal128(d.Movie.DailyRentalRate)
	if err != nil {
		return models.Rental{}, err
	}
	r := models.Rental{
		ID:       d.ID,
		Customer: models.CustomerSnapshot{ID: d.Customer.ID, Name: d.Customer.Name, Phone: d.Customer.Phone, IsGold: d.Customer.IsGold},
		Movie:    models.MovieSnapshot{ID: d.Movie.ID, Title: d.Movie.Title, DailyRentalRate: rate},
		DateOut:  d.DateOut.UTC(),
	}
	if d.DateReturned != nil {
		t := d.DateReturned.UTC()
		r.DateReturned = &t
	}
	if d.RentalFee != nil {
		fee, err := fromDecimal128(*d.RentalFee)
		if err != nil {
			return models.Rental{}, err
		}
		r.RentalFee = &fee
	}
	return r, nil
}

func (m *MongoStore) SaveRental(ctx context.Context, rental models.Rental) error {
	if err := rental.Validate(); err != nil {
		return err
	}
	doc, err := toRentalDoc(rental)
	if err != nil {
		return err
	}
	_, err = m.rentals.InsertOne(ctx, doc)
	return err
}

func (m *MongoStore) GetRental(ctx context.Context, id string) (models.Rental, error) {
	var doc rentalDoc
	err := m.rentals.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Rental{}, models.ErrRentalNotFound
	}
	if err != nil {
		return models.Rental{}, err
	}
	return doc.toModel()
}

func (m *MongoStore) FindLatestRental(ctx context.Context, customerID, movieID string) (models.Rental, error) {
	newestFirst := options.FindOne().SetSort(bson.D{{Key: "dateOut", Value: -1}})
	pair := bson.M{"customer._id": customerID, "movie._id": movieID}
	active := bson.M{"customer._id": customerID, "movie._id": movieID, "dateReturned": nil}

	var doc rentalDoc
	err := m.rentals.FindOne(ctx, active, newestFirst).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		err = m.rentals.FindOne(ctx, pair, newestFirst).Decode(&doc)
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Rental{}, models.ErrRentalNotFound
	}
	if err != nil {
		return models.Rental{}, err
	}
	return doc.toModel()
}

// CloseRental matches only documents whose dateReturned is still null, so the
// update is a single-document compare-and-set.
func (m *MongoStore) CloseRental(ctx context.Context, id string, returnedAt time.Time, fee decimal.Decimal) (models.Rental, error) {
	fee128, err := toDecimal128(fee)
	if err != nil {
		return models.Rental{}, err
	}

	filter := bson.M{"_id": id, "dateReturned": nil}
	update := bson.M{"$set": bson.M{"dateReturned": returnedAt, "rentalFee": fee128}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc rentalDoc
	err = m.rentals.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return doc.toModel()
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.Rental{}, err
	}

	n, err := m.rentals.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return models.Rental{}, err
	}
	if n == 0 {
		return models.Rental{}, models.ErrRentalNotFound
	}
	return models.Rental{}, models.ErrRentalAlreadyClosed
}

func (m *MongoStore) SaveMovie(ctx context.Context, movie models.Movie) error {
	rate, err := toDecimal128(movie.DailyRentalRate)
	if err != nil {
		return err
	}
	doc := movieDoc{
		ID:              movie.ID,
		Title:           movie.Title,
		Genre:           genreDoc{ID: movie.Genre.ID, Name: movie.Genre.Name},
		NumberInStock:   movie.NumberInStock,
		DailyRentalRate: rate,
	}
	_, err = m.movies.ReplaceOne(ctx, bson.M{"_id": movie.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (m *MongoStore) GetMovie(ctx context.Context, id string) (models.Movie, error) {
	var doc movieDoc
	err := m.movies.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Movie{}, models.ErrMovieNotFound
	}
	if err != nil {
		return models.Movie{}, err
	}
	rate, err := fromDecimal128(doc.DailyRentalRate)
	if err != nil {
		return models.Movie{}, err
	}
	return models.Movie{
		ID:              doc.ID,
		Title:           doc.Title,
		Genre:           models.Genre{ID: doc.Genre.ID, Name: doc.Genre.Name},
		NumberInStock:   doc.NumberInStock,
		DailyRentalRate: rate,
	}, nil
}

func (m *MongoStore) IncrementStock(ctx context.Context, movieID string, delta int64) error {
	res, err := m.movies.UpdateOne(ctx, bson.M{"_id": movieID}, bson.M{"$inc": bson.M{"numberInStock": delta}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return models.ErrMovieNotFound
	}
	return nil
}

var (
	_ interfaces.RentalStore  = (*MongoStore)(nil)
	_ interfaces.CatalogStore = (*MongoStore)(nil)
)
