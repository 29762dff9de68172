//go:build !noh265

package muxer

const h265Supported = true
