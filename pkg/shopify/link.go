package shopify

import "strings"

// NextPageURL 从 Link 响应头中取出 rel="next" 的地址
// 例: <https://shop/admin/api/2025-07/orders.json?page_info=abc&limit=250>; rel="next"
func NextPageURL(header string) string {
	if header == "" {
		return ""
	}
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		isNext := false
		for _, param := range segments[1:] {
			param = strings.TrimSpace(param)
			if strings.EqualFold(param, `rel="next"`) || strings.EqualFold(param, "rel=next") {
				isNext = true
				break
			}
		}
		if !isNext {
			continue
		}
		target := strings.TrimSpace(segments[0])
		if strings.HasPrefix(target, "<") && strings.HasSuffix(target, ">") {
			return target[1 : len(target)-1]
		}
	}
	return ""
}
