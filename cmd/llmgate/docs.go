package main

// General API documentation for swaggo. Run `swag init` to regenerate.
//
// @title           llmgate API
// @version         1.0
// @description     OpenAI-compatible chat completions over local llama.cpp models with admission control and sessions.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
// @description                "Bearer <token>" or the raw token.
//
// @schemes http
