//go:build !noh265

package mpegps

const h265Supported = true
