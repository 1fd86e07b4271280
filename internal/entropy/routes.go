package entropy

import (
	"crypto/subtle"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

type feeResponse struct {
	Fee string `json:"fee"`
}

type requestBody struct {
	Commitment common.Hash `json:"commitment"`
	Fee        string      `json:"fee"`
}

type requestResponse struct {
	ID uint64 `json:"id"`
}

type revealBody struct {
	UserSeed     common.Hash `json:"user_seed"`
	ProviderSeed common.Hash `json:"provider_seed"`
}

type revealResponse struct {
	Value string `json:"value"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// RequireAPIKey rejects requests whose bearer token is not apiKey. An empty
// apiKey rejects everything.
func RequireAPIKey(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || apiKey == "" || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}

// RegisterRoutes exposes p over HTTP so other nodes can use it through Client.
//
//	GET  /fee
//	POST /requests
//	GET  /requests/:id
//	POST /requests/:id/reveal
func RegisterRoutes(rg *gin.RouterGroup, p Provider) {
	rg.GET("/fee", func(c *gin.Context) {
		fee, err := p.QuoteFee(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, feeResponse{Fee: fee.String()})
	})

	rg.POST("/requests", func(c *gin.Context) {
		var body requestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		fee, ok := new(big.Int).SetString(body.Fee, 10)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fee"})
			return
		}
		id, err := p.Request(c.Request.Context(), body.Commitment, fee)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, requestResponse{ID: id})
	})

	rg.GET("/requests/:id", func(c *gin.Context) {
		id, ok := requestID(c)
		if !ok {
			return
		}
		status, err := p.Status(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		if status == "" {
			writeError(c, ErrUnknownRequest)
			return
		}
		c.JSON(http.StatusOK, statusResponse{Status: status})
	})

	rg.POST("/requests/:id/reveal", func(c *gin.Context) {
		id, ok := requestID(c)
		if !ok {
			return
		}
		var body revealBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		v, err := p.Reveal(c.Request.Context(), id, body.UserSeed, body.ProviderSeed)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, revealResponse{Value: v.String()})
	})
}

func requestID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrUnknownRequest):
		status = http.StatusNotFound
	case errors.Is(err, ErrAlreadyRevealed):
		status = http.StatusConflict
	case errors.Is(err, ErrRevealMismatch):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ErrFeeMismatch):
		status = http.StatusPaymentRequired
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
