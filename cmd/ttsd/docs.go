package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           ttsd API
// @version         1.0
// @description     HTTP API for the text-to-speech session pool and model lifecycle daemon.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
