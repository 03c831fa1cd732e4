package fs

// Version of corsserve
var Version = "v1.0.0-DEV"
