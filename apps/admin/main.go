package main

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/aits/core"
	"github.com/trezcool/aits/core/issue"
	"github.com/trezcool/aits/core/user"
	"github.com/trezcool/aits/storage/database"
	"github.com/trezcool/aits/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	os.Exit(run())
}

func run() int {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	if err != nil {
		logger.Printf("loading config: %v", err)
		return 1
	}

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Printf("opening database: %v", err)
		return 1
	}
	defer db.Close()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.RegisterValidators(validate, translator)
	issue.RegisterValidators(validate, translator)

	// start CLI
	cli := commandLine{
		db:         db.DB,
		usrSvc:     user.NewService(sqlxrepos.NewUserRepository(db), validate),
		translator: translator,
		out:        os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		return 1
	}
	return 0
}
