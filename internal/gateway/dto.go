package gateway

import (
	"log"

	"product-catalog-client/internal/domain"
)

// productDTO is a product as the catalog API serializes it.
type productDTO struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Price       float64    `json:"price"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Image       string     `json:"image"`
	Rating      *ratingDTO `json:"rating,omitempty"`
}

type ratingDTO struct {
	Rate  float64 `json:"rate"`
	Count int     `json:"count"`
}

// productBody is the request payload for create and update.
type productBody struct {
	Title       string  `json:"title"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Image       string  `json:"image"`
	Category    string  `json:"category"`
}

func toBody(in domain.ProductInput) productBody {
	return productBody{
		Title:       in.Title,
		Price:       in.Price,
		Description: in.Description,
		Image:       in.Image,
		Category:    in.Category,
	}
}

func fromDTO(rules *domain.Rules, dto productDTO) (domain.Product, error) {
	p := domain.Product{
		ID:          dto.ID,
		Title:       dto.Title,
		Price:       dto.Price,
		Category:    dto.Category,
		Image:       dto.Image,
		Description: dto.Description,
	}
	if dto.Rating != nil {
		p.Rating = &domain.Rating{Rate: dto.Rating.Rate, Count: dto.Rating.Count}
	}
	return rules.NewProduct(p)
}

// fromDTOList converts what it can and drops payloads that break a value rule.
func fromDTOList(rules *domain.Rules, logger *log.Logger, dtos []productDTO) []domain.Product {
	products := make([]domain.Product, 0, len(dtos))
	for _, dto := range dtos {
		p, err := fromDTO(rules, dto)
		if err != nil {
			logger.Printf("WARN: gateway: dropping invalid product payload id=%d: %v", dto.ID, err)
			continue
		}
		products = append(products, p)
	}
	return products
}
