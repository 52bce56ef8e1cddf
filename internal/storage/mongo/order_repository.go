package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ordenio/pedidos/internal/domain"
)

const ordersCollection = "orders"

// orderLineDoc — позиция заказа в документе. Денежные значения хранятся
// строками, чтобы не терять точность на float64.
type orderLineDoc struct {
	ProductID int64  `bson:"product_id"`
	Quantity  int    `bson:"quantity"`
	UnitPrice string `bson:"unit_price"`
	LineTotal string `bson:"line_total"`
}

type orderDoc struct {
	ID            string         `bson:"_id"`
	ClientID      int64          `bson:"client_id"`
	WorkerID      int64          `bson:"worker_id"`
	RestaurantID  int64          `bson:"restaurant_id"`
	Lines         []orderLineDoc `bson:"lines"`
	Paid          bool           `bson:"paid"`
	TotalQuantity int            `bson:"total_quantity"`
	TotalPrice    string         `bson:"total_price"`
	Deleted       bool           `bson:"deleted"`
	CreatedAt     time.Time      `bson:"created_at"`
	UpdatedAt     time.Time      `bson:"updated_at"`
}

type orderRepository struct {
	collection *mongo.Collection
}

// NewOrderRepository создаёт Mongo-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{collection: store.Database().Collection(ordersCollection)}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	doc, err := toDoc(order)
	if err != nil {
		return err
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrOrderAlreadyExists
		}
		return fmt.Errorf("insert order %s: %w", order.ID, err)
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	var doc orderDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("find order %s: %w", id, err)
	}
	return fromDoc(doc)
}

func (r *orderRepository) Update(ctx context.Context, order domain.Order) error {
	doc, err := toDoc(order)
	if err != nil {
		return err
	}

	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": order.ID}, doc)
	if err != nil {
		return fmt.Errorf("replace order %s: %w", order.ID, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) Delete(ctx context.Context, id string) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete order %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) ListByClient(ctx context.Context, clientID int64, page domain.PageRequest) ([]domain.Order, error) {
	page = page.Normalize()

	direction := 1
	if page.Desc {
		direction = -1
	}

	opts := options.Find().
		SetSkip(int64(page.Offset())).
		SetLimit(int64(page.Limit)).
		SetSort(bson.D{{Key: sortKey(page.SortField), Value: direction}, {Key: "_id", Value: direction}})

	cursor, err := r.collection.Find(ctx, bson.M{"client_id": clientID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list orders for client %d: %w", clientID, err)
	}
	defer cursor.Close(ctx)

	orders := make([]domain.Order, 0, page.Limit)
	for cursor.Next(ctx) {
		var doc orderDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode order document: %w", err)
		}
		order, err := fromDoc(doc)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate order documents: %w", err)
	}

	return orders, nil
}

func (r *orderRepository) ExistsByClient(ctx context.Context, clientID int64) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"client_id": clientID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count orders for client %d: %w", clientID, err)
	}
	return count > 0, nil
}

func sortKey(field string) string {
	switch field {
	case "total_price", "total_quantity", "updated_at", "created_at":
		return field
	default:
		return "created_at"
	}
}

func toDoc(order domain.Order) (orderDoc, error) {
	if order.ID == "" {
		return orderDoc{}, fmt.Errorf("order id is empty")
	}

	lines := make([]orderLineDoc, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLineDoc{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.String(),
			LineTotal: line.LineTotal.String(),
		})
	}

	return orderDoc{
		ID:            order.ID,
		ClientID:      order.ClientID,
		WorkerID:      order.WorkerID,
		RestaurantID:  order.RestaurantID,
		Lines:         lines,
		Paid:          order.Paid,
		TotalQuantity: order.TotalQuantity,
		TotalPrice:    order.TotalPrice.String(),
		Deleted:       order.Deleted,
		CreatedAt:     order.CreatedAt.UTC(),
		UpdatedAt:     order.UpdatedAt.UTC(),
	}, nil
}

func fromDoc(doc orderDoc) (domain.Order, error) {
	totalPrice, err := decimal.NewFromString(doc.TotalPrice)
	if err != nil {
		return domain.Order{}, fmt.Errorf("parse total price for order %s: %w", doc.ID, err)
	}

	lines := make([]domain.OrderLine, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		unitPrice, err := decimal.NewFromString(line.UnitPrice)
		if err != nil {
			return domain.Order{}, fmt.Errorf("parse unit price for order %s: %w", doc.ID, err)
		}
		lineTotal, err := decimal.NewFromString(line.LineTotal)
		if err != nil {
			return domain.Order{}, fmt.Errorf("parse line total for order %s: %w", doc.ID, err)
		}
		lines = append(lines, domain.OrderLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: unitPrice,
			LineTotal: lineTotal,
		})
	}

	return domain.Order{
		ID:            doc.ID,
		ClientID:      doc.ClientID,
		WorkerID:      doc.WorkerID,
		RestaurantID:  doc.RestaurantID,
		Lines:         lines,
		Paid:          doc.Paid,
		TotalQuantity: doc.TotalQuantity,
		TotalPrice:    totalPrice,
		Deleted:       doc.Deleted,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
