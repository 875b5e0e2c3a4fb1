package redisx

import "time"

const (
	// download_link:product:{product_id} -> JSON encoded download link
	KeyDownloadLinkByProduct = "download_link:product:%s"
)

var TTLDownloadLink = 5 * time.Minute
