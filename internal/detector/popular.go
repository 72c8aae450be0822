package detector

// PopularPackages is the built-in list of high-download npm package
// names used as typosquat targets. Kept lowercase.
var PopularPackages = []string{
	"react", "react-dom", "react-router", "react-router-dom", "react-scripts",
	"vue", "angular", "svelte", "next", "nuxt", "vite", "webpack", "rollup",
	"esbuild", "parcel", "babel", "typescript", "eslint", "prettier",
	"lodash", "underscore", "ramda", "axios", "node-fetch", "got", "superagent",
	"express", "koa", "fastify", "hapi", "socket.io", "ws", "cors",
	"body-parser", "cookie-parser", "morgan", "helmet", "compression",
	"jest", "mocha", "chai", "sinon", "jasmine", "karma", "cypress",
	"playwright", "puppeteer", "supertest", "vitest",
	"moment", "dayjs", "date-fns", "luxon",
	"chalk", "colors", "commander", "yargs", "inquirer", "ora", "minimist",
	"debug", "winston", "pino", "bunyan", "log4js",
	"dotenv", "config", "rc", "nconf",
	"uuid", "nanoid", "shortid",
	"mongoose", "sequelize", "knex", "typeorm", "prisma", "pg", "mysql",
	"mysql2", "sqlite3", "redis", "ioredis", "mongodb",
	"jsonwebtoken", "bcrypt", "bcryptjs", "passport", "crypto-js", "argon2",
	"rxjs", "zustand", "redux", "react-redux", "mobx", "recoil", "jotai",
	"styled-components", "emotion", "tailwindcss", "sass", "less", "postcss",
	"graphql", "apollo-server", "@apollo/client", "relay",
	"left-pad", "is-odd", "is-even", "mkdirp", "rimraf", "glob", "fs-extra",
	"semver", "chokidar", "nodemon", "pm2", "concurrently", "cross-env",
	"npm", "yarn", "pnpm", "lerna", "nx", "turbo",
	"request", "bluebird", "async", "q", "co",
	"cheerio", "jsdom", "xml2js", "js-yaml", "marked", "highlight.js",
	"sharp", "jimp", "multer", "formidable", "busboy",
	"zod", "joi", "yup", "ajv", "validator", "class-validator",
	"discord.js", "telegraf", "twilio", "stripe", "aws-sdk", "firebase",
	"electron", "react-native", "expo", "ionic",
}
