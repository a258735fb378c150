package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"shopify_order_sync/pkg/shopify"
)

// 店铺凭证请求头
const (
	HeaderShopDomain  = "X-Shopify-Shop-Domain"
	HeaderAccessToken = shopify.AccessTokenHeader
)

const credentialKey = "shopCredential"

// ShopHeaders 校验店铺域名与访问令牌，缺失时直接返回 400，不进入业务逻辑
func ShopHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		shop := strings.TrimSpace(c.GetHeader(HeaderShopDomain))
		token := strings.TrimSpace(c.GetHeader(HeaderAccessToken))

		if shop == "" || token == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "Missing shop or access token in headers",
				"requiredHeaders": gin.H{
					HeaderShopDomain:  "your-shop.myshopify.com",
					HeaderAccessToken: "shpat_...",
				},
			})
			return
		}

		c.Set(credentialKey, shopify.Credential{Shop: strings.ToLower(shop), AccessToken: token})
		c.Next()
	}
}

// GetCredential 读取 ShopHeaders 写入的凭证
func GetCredential(c *gin.Context) (shopify.Credential, bool) {
	val, ok := c.Get(credentialKey)
	if !ok {
		return shopify.Credential{}, false
	}
	cred, ok := val.(shopify.Credential)
	return cred, ok
}
