// Package di contains dependency injection tokens for the blockchain context.
package di

import (
	"github.com/fd1az/headlag-exporter/business/blockchain/app"
	"github.com/fd1az/headlag-exporter/internal/di"
)

// Public service tokens - exposed to other modules
var (
	HeadSource  = di.NewToken[app.HeadSource]("blockchain.HeadSource")
	HeadDecoder = di.NewToken[app.HeadDecoder]("blockchain.HeadDecoder")
)

// Private dependency tokens - internal to blockchain module
var (
	Transport = di.NewToken[app.HeadSource]("blockchain:transport")
)

// Helper functions for type-safe access
func GetHeadSource(c di.ServiceRegistry) app.HeadSource {
	return di.GetToken(c, HeadSource)
}

func GetHeadDecoder(c di.ServiceRegistry) app.HeadDecoder {
	return di.GetToken(c, HeadDecoder)
}

func GetTransport(c di.ServiceRegistry) app.HeadSource {
	return di.GetToken(c, Transport)
}
